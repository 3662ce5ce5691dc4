package config

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// Config provides access to a configuration file with access tracking.
// Options that were parsed but never read can be reported back to the
// user as likely typos.
type Config struct {
	mu       sync.RWMutex
	sections map[string]*Section
	order    []string

	accessedSections map[string]struct{}
}

// New creates a new empty Config.
func New() *Config {
	return &Config{
		sections:         make(map[string]*Section),
		accessedSections: make(map[string]struct{}),
	}
}

// Load reads a configuration file and returns a Config.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: unable to open %s: %w", path, err)
	}
	defer f.Close()

	c := New()
	if err := c.parse(bufio.NewScanner(f), path); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadString parses configuration data from a string.
func LoadString(data string) (*Config, error) {
	c := New()
	if err := c.parse(bufio.NewScanner(strings.NewReader(data)), "<string>"); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) parse(scanner *bufio.Scanner, path string) error {
	var currentSection string
	var currentOptions map[string]string

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		// Strip comments.
		if idx := strings.IndexAny(line, "#;"); idx >= 0 {
			line = strings.TrimSpace(line[:idx])
			if line == "" {
				continue
			}
		}

		// Section header.
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if currentSection != "" {
				c.addSection(currentSection, currentOptions)
			}
			header := strings.TrimSpace(line[1 : len(line)-1])
			if header == "" {
				return fmt.Errorf("config: empty section header at line %d in %s", lineNum, path)
			}
			currentSection = header
			currentOptions = make(map[string]string)
			continue
		}

		// Options before the first section are ignored.
		if currentSection == "" {
			continue
		}

		// key: value or key = value
		kv := strings.SplitN(line, ":", 2)
		if len(kv) != 2 {
			kv = strings.SplitN(line, "=", 2)
		}
		if len(kv) != 2 {
			continue
		}
		currentOptions[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}
	if currentSection != "" {
		c.addSection(currentSection, currentOptions)
	}
	return nil
}

func (c *Config) addSection(name string, options map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name = strings.ToLower(name)
	if existing, ok := c.sections[name]; ok {
		// Later sections with the same name override individual options.
		for k, v := range options {
			existing.options[strings.ToLower(k)] = v
		}
		return
	}
	c.sections[name] = newSection(name, options)
	c.order = append(c.order, name)
}

// GetSection returns a section by name, marking it accessed.
func (c *Config) GetSection(name string) (*Section, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(name)
	s, ok := c.sections[key]
	if !ok {
		return nil, ErrMissingSection(name)
	}
	c.accessedSections[key] = struct{}{}
	return s, nil
}

// GetSectionOptional returns a section by name, or nil if absent.
func (c *Config) GetSectionOptional(name string) *Section {
	s, err := c.GetSection(name)
	if err != nil {
		return nil
	}
	return s
}

// HasSection checks whether a section exists.
func (c *Config) HasSection(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[strings.ToLower(name)]
	return ok
}

// GetSectionNames returns all section names in file order.
func (c *Config) GetSectionNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.order))
	copy(names, c.order)
	return names
}

// GetUnusedSections returns sections that were never accessed.
func (c *Config) GetUnusedSections() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var unused []string
	for _, name := range c.order {
		if _, ok := c.accessedSections[name]; !ok {
			unused = append(unused, name)
		}
	}
	return unused
}

// CheckUnusedOptions returns an error naming any option that was parsed
// but never read by the application, across all accessed sections.
func (c *Config) CheckUnusedOptions() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var unused []string
	for _, name := range c.order {
		if _, ok := c.accessedSections[name]; !ok {
			continue
		}
		for _, opt := range c.sections[name].GetUnusedOptions() {
			unused = append(unused, fmt.Sprintf("[%s] %s", name, opt))
		}
	}
	if len(unused) == 0 {
		return nil
	}
	sort.Strings(unused)
	return fmt.Errorf("config: unknown options: %s", strings.Join(unused, ", "))
}
