package command

import (
	"crypto/rand"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsFS embed.FS

var (
	// ErrReservedSlug is returned when a custom command would shadow a
	// built-in one.
	ErrReservedSlug = errors.New("slug is reserved by a default command")
	// ErrNotFound is returned for lookups and deletes of unknown slugs.
	ErrNotFound = errors.New("command not found")
)

// Registry holds the merged command namespace: immutable built-ins loaded
// from the embedded defaults file plus user-created custom commands.
type Registry struct {
	defaults []Command

	mu     sync.Mutex
	custom map[string]Command
}

type defaultsFile struct {
	Commands []Command `yaml:"commands"`
}

func NewRegistry() (*Registry, error) {
	data, err := defaultsFS.ReadFile("defaults.yaml")
	if err != nil {
		return nil, err
	}
	var df defaultsFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		return nil, fmt.Errorf("parse defaults.yaml: %w", err)
	}
	if len(df.Commands) == 0 {
		return nil, errors.New("defaults.yaml contains no commands")
	}
	return &Registry{
		defaults: df.Commands,
		custom:   make(map[string]Command),
	}, nil
}

// List returns built-ins first, then custom commands sorted by slug.
func (r *Registry) List() []Command {
	if r == nil {
		return nil
	}
	out := append([]Command(nil), r.defaults...)
	r.mu.Lock()
	customs := make([]Command, 0, len(r.custom))
	for _, cmd := range r.custom {
		customs = append(customs, cmd)
	}
	r.mu.Unlock()
	sort.Slice(customs, func(i, j int) bool { return customs[i].Slug < customs[j].Slug })
	return append(out, customs...)
}

// ListCustom returns only the user-created commands, sorted by slug.
func (r *Registry) ListCustom() []Command {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	out := make([]Command, 0, len(r.custom))
	for _, cmd := range r.custom {
		out = append(out, cmd)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Slug < out[j].Slug })
	return out
}

// Get resolves a slug across the combined default+custom namespace.
func (r *Registry) Get(slug string) (Command, bool) {
	if r == nil {
		return Command{}, false
	}
	want := strings.TrimSpace(slug)
	for _, cmd := range r.defaults {
		if cmd.Slug == want {
			return cmd, true
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.custom[want]
	return cmd, ok
}

func (r *Registry) GetCustom(slug string) (Command, bool) {
	if r == nil {
		return Command{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cmd, ok := r.custom[strings.TrimSpace(slug)]
	return cmd, ok
}

// SaveCustom upserts a custom command by slug. Custom commands can never
// shadow a built-in slug.
func (r *Registry) SaveCustom(cmd Command) (Command, error) {
	if r == nil {
		return Command{}, errors.New("nil registry")
	}
	cmd.Slug = strings.TrimSpace(cmd.Slug)
	cmd.Name = strings.TrimSpace(cmd.Name)
	if cmd.Slug == "" {
		return Command{}, errors.New("slug is required")
	}
	if cmd.Name == "" {
		return Command{}, errors.New("name is required")
	}
	if strings.TrimSpace(cmd.UserTemplate) == "" {
		return Command{}, errors.New("userTemplate is required")
	}
	for _, d := range r.defaults {
		if d.Slug == cmd.Slug {
			return Command{}, fmt.Errorf("%w: %s", ErrReservedSlug, cmd.Slug)
		}
	}
	cmd.Kind = "custom"
	if strings.TrimSpace(cmd.ID) == "" {
		cmd.ID = generateCommandID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.custom[cmd.Slug]; ok {
		cmd.ID = existing.ID
	}
	r.custom[cmd.Slug] = cmd
	return cmd, nil
}

func (r *Registry) DeleteCustom(slug string) error {
	if r == nil {
		return errors.New("nil registry")
	}
	want := strings.TrimSpace(slug)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.custom[want]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, want)
	}
	delete(r.custom, want)
	return nil
}

func generateCommandID() string {
	return "cmd-" + time.Now().UTC().Format("20060102-150405") + "-" + randomHex(3)
}

func randomHex(n int) string {
	if n <= 0 {
		n = 4
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UTC().UnixNano())
	}
	return hex.EncodeToString(buf)
}
