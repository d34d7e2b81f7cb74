// Package logging wraps uber/zap for the daemon.
//
// Production writes JSON lines; development writes colored console output.
// Components derive a child with Named so every line carries the emitting
// component ("installer", "provision", ...).
//
//	logger, err := logging.New(logging.Config{Level: "debug", Development: true})
//	log := logger.Named("installer")
//	log.Info("Install started", zap.String("package", "Servo"))
package logging
