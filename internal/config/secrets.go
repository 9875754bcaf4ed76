package config

// redacted replaces a non-empty secret with a placeholder for logging.
func redacted(s string) string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// Redacted returns a deep copy of the config with all credential material
// replaced, safe to log at startup.
func (c Config) Redacted() Config {
	out := c

	out.Exchanges = make(map[string]ExchangeConfig, len(c.Exchanges))
	for name, ex := range c.Exchanges {
		ex.ApiKey = redacted(ex.ApiKey)
		ex.ApiSecret = redacted(ex.ApiSecret)
		ex.SecretPassword = redacted(ex.SecretPassword)
		ex.Passphrase = redacted(ex.Passphrase)
		out.Exchanges[name] = ex
	}

	out.Server.APIKey = redacted(c.Server.APIKey)
	out.Postgres.DSN = redacted(c.Postgres.DSN)
	out.Postgres.Password = redacted(c.Postgres.Password)
	out.Redis.Password = redacted(c.Redis.Password)
	out.S3.AccessKey = redacted(c.S3.AccessKey)
	out.S3.SecretKey = redacted(c.S3.SecretKey)
	out.Notify.TelegramToken = redacted(c.Notify.TelegramToken)
	out.Notify.DiscordWebhookURL = redacted(c.Notify.DiscordWebhookURL)

	return out
}
