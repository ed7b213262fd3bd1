package main

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openharmony/aafwk-standard-sub013/internal/shared/types"
)

type elementFlags struct {
	device  string
	bundle  string
	ability string
	module  string
	uri     string
	user    int
}

func (f *elementFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.device, "device", "d", "", "device id")
	cmd.Flags().StringVarP(&f.bundle, "bundle", "b", "", "bundle name")
	cmd.Flags().StringVarP(&f.ability, "ability", "a", "", "ability name")
	cmd.Flags().StringVarP(&f.module, "module", "m", "", "module name")
	cmd.Flags().StringVar(&f.uri, "uri", "", "want uri, instead of -b/-a")
	cmd.Flags().IntVarP(&f.user, "user", "u", -1, "user id; -1 derives it from the caller")
}

func (f *elementFlags) body() (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if f.user >= 0 {
		out["user_id"] = f.user
	}
	if f.uri != "" {
		out["uri"] = f.uri
		return out, nil
	}
	if f.bundle == "" || f.ability == "" {
		return nil, fmt.Errorf("need --bundle and --ability, or --uri")
	}
	out["want"] = types.NewWant(types.ElementName{
		DeviceID:    f.device,
		BundleName:  f.bundle,
		AbilityName: f.ability,
		ModuleName:  f.module,
	})
	return out, nil
}

func newStartCmd(opts *globalOpts) *cobra.Command {
	var ef elementFlags
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an ability",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := ef.body()
			if err != nil {
				return err
			}
			if err := newClient(opts).call(cmd.Context(), http.MethodPost, "/v1/abilities/start", body, nil); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "start ability successfully.")
			return err
		},
	}
	ef.bind(cmd)
	return cmd
}

func newStopServiceCmd(opts *globalOpts) *cobra.Command {
	var ef elementFlags
	cmd := &cobra.Command{
		Use:   "stop-service",
		Short: "Stop a service ability",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := ef.body()
			if err != nil {
				return err
			}
			if err := newClient(opts).call(cmd.Context(), http.MethodPost, "/v1/services/stop", body, nil); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "stop service ability successfully.")
			return err
		},
	}
	ef.bind(cmd)
	return cmd
}

func newDumpCmd(opts *globalOpts, name, path string) *cobra.Command {
	return &cobra.Command{
		Use:                name + " [args...]",
		Short:              "Print the " + name + " report",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			args, err := takeGlobals(cmd, args)
			if err != nil {
				return err
			}
			out, err := newClient(opts).text(cmd.Context(), path, map[string]interface{}{"args": args})
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
}

// takeGlobals pulls the tool's own --flags out of a raw argument list; the
// rest belongs to the server side parser
func takeGlobals(cmd *cobra.Command, args []string) ([]string, error) {
	globals := cmd.InheritedFlags()
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		name, val, hasVal := strings.Cut(strings.TrimPrefix(args[i], "--"), "=")
		if !strings.HasPrefix(args[i], "--") || globals.Lookup(name) == nil {
			rest = append(rest, args[i])
			continue
		}
		if !hasVal {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("flag --%s needs a value", name)
			}
			i++
			val = args[i]
		}
		if err := globals.Set(name, val); err != nil {
			return nil, err
		}
	}
	return rest, nil
}

func newTopCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "top",
		Short: "Print the foreground ability",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Element *types.ElementName `json:"element"`
			}
			if err := newClient(opts).call(cmd.Context(), http.MethodGet, "/v1/abilities/top", nil, &out); err != nil {
				return err
			}
			if out.Element == nil {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no foreground ability")
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), out.Element.URI())
			return err
		},
	}
}

func newMissionsCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "missions",
		Short: "Inspect and manage missions",
	}

	var numMax int
	list := &cobra.Command{
		Use:   "list",
		Short: "List missions of the current user",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				Missions []types.MissionInfo `json:"missions"`
			}
			path := "/v1/missions?max=" + strconv.Itoa(numMax)
			if err := newClient(opts).call(cmd.Context(), http.MethodGet, path, nil, &out); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLABEL\tRUNNING\tLOCKED\tELEMENT")
			for _, m := range out.Missions {
				element := ""
				if m.Want != nil {
					element = m.Want.Element.URI()
				}
				fmt.Fprintf(tw, "%d\t%s\t%t\t%t\t%s\n", m.ID, m.Label,
					m.RunningState == types.MissionRunning, m.LockedState, element)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVar(&numMax, "max", 20, "maximum number of missions")
	cmd.AddCommand(list)

	cmd.AddCommand(missionAction(opts, "front", "Move a mission to the foreground", http.MethodPost, "/front"))
	cmd.AddCommand(missionAction(opts, "clean", "Remove a mission", http.MethodDelete, ""))
	cmd.AddCommand(missionAction(opts, "lock", "Lock a mission against cleanup", http.MethodPost, "/lock"))
	cmd.AddCommand(missionAction(opts, "unlock", "Unlock a mission", http.MethodPost, "/unlock"))
	cmd.AddCommand(&cobra.Command{
		Use:   "clean-all",
		Short: "Remove every unlocked mission",
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).call(cmd.Context(), http.MethodDelete, "/v1/missions", nil, nil)
		},
	})
	return cmd
}

func missionAction(opts *globalOpts, name, short, method, suffix string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <mission-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid mission id %q", args[0])
			}
			return newClient(opts).call(cmd.Context(), method, "/v1/missions/"+strconv.Itoa(id)+suffix, nil, nil)
		},
	}
}

func newUserCmd(opts *globalOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Switch and stop OS users",
	}
	for _, action := range []string{"start", "stop"} {
		cmd.AddCommand(&cobra.Command{
			Use:   action + " <user-id>",
			Short: action + " a user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid user id %q", args[0])
				}
				return newClient(opts).call(cmd.Context(), http.MethodPost, "/v1/users/"+strconv.Itoa(id)+"/"+action, nil, nil)
			},
		})
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "current",
		Short: "Print the foreground user",
		RunE: func(cmd *cobra.Command, args []string) error {
			var out struct {
				UserID int `json:"user_id"`
			}
			if err := newClient(opts).call(cmd.Context(), http.MethodGet, "/v1/users/current", nil, &out); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), out.UserID)
			return err
		},
	})
	return cmd
}

func newKillCmd(opts *globalOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "kill <bundle>",
		Short: "Kill every process of a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient(opts).call(cmd.Context(), http.MethodDelete, "/v1/apps/"+args[0], nil, nil)
		},
	}
}
