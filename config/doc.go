// Package config loads layered configuration with Viper.
//
// A YAML file (sona.yml, config/sona.yml or the user config directory) is
// read first, then an optional .env file, then the process environment:
//
//	var cfg MyConfig
//	err := config.LoadConfig("sona", &cfg)
//
// Environment keys address nested fields through underscores, for example
// SERVER_PORT sets server.port.
package config
