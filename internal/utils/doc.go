// Package utils exposes reusable helpers consumed by the clu commands.
//
// It houses ConfigurationLoader, which layers embedded defaults, a
// configuration file, dotenv files and CLU_ prefixed environment variables
// through Viper, and LoggerFactory, which builds the zap loggers.
package utils
