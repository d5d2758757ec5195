package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"ServerMonitorAPI/internal/logger"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

const (
	DefaultServiceTimeout = 10 * time.Second
	DefaultHealthPath     = "/health"
	DefaultCarrier        = "verizon"
)

// Platform is the file-based part of the configuration: sibling services
// reached through the resilient client and the SMS carrier gateway table.
type Platform struct {
	Services []ServiceEndpoint `yaml:"services"`
	SMS      SMSConfig         `yaml:"sms"`
}

type ServiceEndpoint struct {
	Name       string        `yaml:"name"`
	BaseURL    string        `yaml:"base_url"`
	HealthPath string        `yaml:"health_path"`
	Timeout    time.Duration `yaml:"timeout"`
}

type SMSConfig struct {
	DefaultCarrier string            `yaml:"default_carrier"`
	Carriers       map[string]string `yaml:"carriers"`
}

var defaultCarriers = map[string]string{
	"att":        "txt.att.net",
	"tmobile":    "tmomail.net",
	"verizon":    "vtext.com",
	"sprint":     "messaging.sprintpcs.com",
	"uscellular": "email.uscc.net",
	"cricket":    "sms.cricketwireless.net",
	"boost":      "sms.myboostmobile.com",
}

// DefaultPlatform is used when no platform file is present.
func DefaultPlatform() *Platform {
	p := &Platform{}
	p.applyDefaults()
	return p
}

func LoadPlatform(path string) (*Platform, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read platform config %s: %w", path, err)
	}

	var p Platform
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse platform config %s: %w", path, err)
	}

	p.applyDefaults()

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return &p, nil
}

func (p *Platform) applyDefaults() {
	for i := range p.Services {
		if p.Services[i].HealthPath == "" {
			p.Services[i].HealthPath = DefaultHealthPath
		}
		if p.Services[i].Timeout <= 0 {
			p.Services[i].Timeout = DefaultServiceTimeout
		}
		p.Services[i].BaseURL = strings.TrimRight(p.Services[i].BaseURL, "/")
	}

	if len(p.SMS.Carriers) == 0 {
		p.SMS.Carriers = make(map[string]string, len(defaultCarriers))
		for name, gateway := range defaultCarriers {
			p.SMS.Carriers[name] = gateway
		}
	}
	if p.SMS.DefaultCarrier == "" {
		p.SMS.DefaultCarrier = DefaultCarrier
	}
}

func (p *Platform) Validate() error {
	var errors []string
	seen := make(map[string]bool)

	for i, svc := range p.Services {
		if svc.Name == "" {
			errors = append(errors, fmt.Sprintf("services[%d].name is required", i))
		}
		if seen[svc.Name] {
			errors = append(errors, fmt.Sprintf("services[%d].name %q is duplicated", i, svc.Name))
		}
		seen[svc.Name] = true
		if !strings.HasPrefix(svc.BaseURL, "http://") && !strings.HasPrefix(svc.BaseURL, "https://") {
			errors = append(errors, fmt.Sprintf("services[%d].base_url must be an http(s) URL", i))
		}
	}

	if p.SMS.DefaultCarrier != "all" {
		if _, ok := p.SMS.Carriers[p.SMS.DefaultCarrier]; !ok {
			errors = append(errors, fmt.Sprintf("sms.default_carrier %q is not in sms.carriers", p.SMS.DefaultCarrier))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("platform config validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

func (p *Platform) Service(name string) (ServiceEndpoint, bool) {
	for _, svc := range p.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return ServiceEndpoint{}, false
}

// WatchPlatform reloads the platform file on write and hands the new value
// to onChange. A file that fails to load is logged and skipped, leaving the
// previous value in effect. Returns when ctx is cancelled.
func WatchPlatform(ctx context.Context, path string, log *logger.Logger, onChange func(*Platform)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	log.Info("Watching platform config %s", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			p, err := LoadPlatform(path)
			if err != nil {
				log.Error("Platform config reload failed, keeping previous: %v", err)
				continue
			}

			log.Info("Platform config reloaded from %s", path)
			onChange(p)

			// atomic saves replace the inode
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Error("Platform config watcher error: %v", err)
		}
	}
}
