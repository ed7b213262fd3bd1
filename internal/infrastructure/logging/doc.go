// Package logging wraps zap for the ability manager.
//
// Production lines are JSON; development lines are colored console output.
// Every manager derives its own child with ForComponent and ForUser, so a
// line from the connect manager of user 100 carries logger="connect" and
// user_id=100:
//
//	logger, _ := logging.New(logging.DefaultConfig())
//	log := logger.ForComponent("connect").ForUser(100)
//	log.Warn("load timeout", zap.String("element", uri))
package logging
