package services

import "crenors/guildbot/internal/config"

// ConfigSource is the live configuration the services read and mutate.
// *config.Store implements it.
type ConfigSource interface {
	Current() config.Config
	Update(fn func(cfg *config.Config)) error
	Subscribe(sub config.Subscriber)
}
