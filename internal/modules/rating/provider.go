package rating

import (
	"sync"

	"github.com/aristath/poolrisk/internal/domain"
	"github.com/rs/zerolog"
)

// Provider holds the active threshold table and swaps it on Reload without
// disturbing mappings in flight
type Provider struct {
	mu    sync.RWMutex
	table *Table
	path  string
	log   zerolog.Logger
}

// NewProvider loads the table at path (the embedded default when empty)
func NewProvider(path string, log zerolog.Logger) (*Provider, error) {
	table, err := LoadTable(path)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		table: table,
		path:  path,
		log:   log.With().Str("component", "rating_provider").Logger(),
	}
	p.log.Info().
		Str("version", table.Version).
		Int("scales", len(table.Scales)).
		Str("source", p.source()).
		Msg("Rating table loaded")
	return p, nil
}

// NewProviderFromTable wraps an already validated table
func NewProviderFromTable(table *Table, log zerolog.Logger) *Provider {
	return &Provider{
		table: table,
		log:   log.With().Str("component", "rating_provider").Logger(),
	}
}

// Table returns the active table. Callers must not modify it.
func (p *Provider) Table() *Table {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.table
}

// Map rates a report against the active table
func (p *Provider) Map(report *domain.RiskReport) (domain.ShadowRating, error) {
	return p.Table().Map(report)
}

// Reload re-reads the table from its source. On error the previous table
// stays active.
func (p *Provider) Reload() error {
	table, err := LoadTable(p.path)
	if err != nil {
		p.log.Error().Err(err).Str("source", p.source()).Msg("Rating table reload failed, keeping previous table")
		return err
	}

	p.mu.Lock()
	previous := p.table.Version
	p.table = table
	p.mu.Unlock()

	if previous != table.Version {
		p.log.Info().Str("previous", previous).Str("version", table.Version).Msg("Rating table reloaded")
	} else {
		p.log.Debug().Str("version", table.Version).Msg("Rating table reloaded")
	}
	return nil
}

func (p *Provider) source() string {
	if p.path == "" {
		return "embedded"
	}
	return p.path
}
