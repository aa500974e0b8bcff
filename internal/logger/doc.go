// Package logger wraps zap for the packaging pipeline:
//   - a global sugared logger with a console encoder,
//   - context helpers (ToContext/FromContext/WithName/WithKV/WithFields),
//   - level configuration and parsing utilities,
//   - convenience functions (Infof, ErrorKV, etc.).
//
// Every stage of a packaging run takes a context and logs through the
// logger carried in it, so one run's output stays scoped and structured
// from the CLI down to the external tool invocations.
package logger
