// Package config provides configuration management for authbot.
//
// Configuration is read from a single YAML file, by default
// ~/.config/authbot/config.yaml. A missing file is not an error; the built-in
// defaults are used instead. Environment variables prefixed with AUTHBOT_
// override file values, which is the intended way to supply secrets such as
// the OAuth client secret and the correlation signing key.
//
// # Example
//
//	server:
//	  port: 3979
//	  publicURL: https://bot.example.com
//	oauth:
//	  issuerURL: https://login.microsoftonline.com/common/v2.0
//	  clientID: 00000000-0000-0000-0000-000000000000
//	  skipIssuerCheck: true
//	  scopes: [openid, profile, email, offline_access]
//	pending:
//	  ttl: 10m
//	messaging:
//	  transport: kafka
//	  kafka:
//	    brokers: [localhost:9092]
//	store:
//	  driver: sqlite
//	  path: /var/lib/authbot/sessions.db
//
// LoadConfig applies defaults, then the file, then the environment, and
// finally runs Validate, returning ValidationErrors listing every problem.
package config
