package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"ServerMonitorAPI/internal/config"
	"ServerMonitorAPI/internal/logger"
)

// AllCarriers broadcasts to every gateway in the table.
const AllCarriers = "all"

// SMSProvider sends text messages through carrier email-to-SMS gateways.
// The carrier comes from metadata["carrier"], else the configured default.
type SMSProvider struct {
	email *EmailProvider
	log   *logger.Logger

	mu  sync.RWMutex
	cfg config.SMSConfig
}

func NewSMSProvider(email *EmailProvider, cfg config.SMSConfig, log *logger.Logger) *SMSProvider {
	return &SMSProvider{email: email, cfg: cfg, log: log}
}

// UpdateCarriers swaps the carrier table, typically after a platform reload.
func (p *SMSProvider) UpdateCarriers(cfg config.SMSConfig) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
	p.log.Info("SMS carrier table updated: %d carriers, default %s", len(cfg.Carriers), cfg.DefaultCarrier)
}

func (p *SMSProvider) Send(ctx context.Context, destination, subject, content string, metadata map[string]interface{}) Result {
	number, valid := NormalizePhone(destination)
	if !valid {
		return failure("invalid phone number %q", destination)
	}

	carrier := ""
	if v, found := metadata["carrier"].(string); found {
		carrier = strings.ToLower(v)
	}

	addresses, err := p.Gateways(number, carrier)
	if err != nil {
		return failure("%v", err)
	}

	// gateways drop the subject line
	body := content
	if subject != "" {
		body = subject + ": " + content
	}

	return p.email.SendTo(ctx, addresses, "", body)
}

// Gateways returns the gateway addresses for number. An empty carrier
// selects the default one.
func (p *SMSProvider) Gateways(number, carrier string) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if carrier == "" {
		carrier = p.cfg.DefaultCarrier
	}

	if carrier == AllCarriers {
		names := make([]string, 0, len(p.cfg.Carriers))
		for name := range p.cfg.Carriers {
			names = append(names, name)
		}
		sort.Strings(names)

		addresses := make([]string, 0, len(names))
		for _, name := range names {
			addresses = append(addresses, number+"@"+p.cfg.Carriers[name])
		}
		if len(addresses) == 0 {
			return nil, errors.New("no SMS carriers configured")
		}
		return addresses, nil
	}

	gateway, found := p.cfg.Carriers[carrier]
	if !found {
		return nil, fmt.Errorf("unknown SMS carrier %q", carrier)
	}
	return []string{number + "@" + gateway}, nil
}

// NormalizePhone reduces a North American number to its ten digits.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return "", false
	}
	return digits, true
}
