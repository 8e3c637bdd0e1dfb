package msgcat

import (
    "embed"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "strings"
    "text/template"

    yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var defaultFiles embed.FS

const defaultFile = "messages.en.yaml"

// Catalog holds the player-facing texts: embedded English defaults, optionally overridden per key
// by YAML files in a directory. Every value is compiled as a text/template when the catalog is
// loaded and rendered with missingkey=error. A Catalog is read-only after New.
type Catalog struct {
    tpls map[string]*template.Template
}

// New loads the embedded defaults, layers the overrides from overrideDir on top and compiles
// the result. A malformed template fails here rather than when a player first triggers it.
func New(overrideDir string) (*Catalog, error) {
    raw, err := defaultFiles.ReadFile(defaultFile)
    if err != nil {
        return nil, fmt.Errorf("read embedded messages: %w", err)
    }
    texts, err := flatten(raw)
    if err != nil {
        return nil, fmt.Errorf("parse %s: %w", defaultFile, err)
    }
    if strings.TrimSpace(overrideDir) != "" {
        overrides, err := readOverrides(overrideDir)
        if err != nil {
            return nil, err
        }
        for k, v := range overrides { texts[k] = v }
    }

    c := &Catalog{tpls: make(map[string]*template.Template, len(texts))}
    for key, src := range texts {
        if strings.TrimSpace(src) == "" { continue }
        t, err := template.New(key).Option("missingkey=error").Parse(src)
        if err != nil {
            return nil, fmt.Errorf("message %s: %w", key, err)
        }
        c.tpls[key] = t
    }
    return c, nil
}

// readOverrides merges every *.yaml/*.yml file in dir. Two files setting the same key is an error.
func readOverrides(dir string) (map[string]string, error) {
    entries, err := os.ReadDir(dir)
    if err != nil {
        return nil, fmt.Errorf("read message dir: %w", err)
    }
    var files []string
    for _, e := range entries {
        if e.IsDir() { continue }
        switch strings.ToLower(filepath.Ext(e.Name())) {
        case ".yaml", ".yml":
            files = append(files, e.Name())
        }
    }
    sort.Strings(files)

    merged := make(map[string]string)
    owner := make(map[string]string)
    for _, name := range files {
        b, err := os.ReadFile(filepath.Join(dir, name))
        if err != nil { return nil, fmt.Errorf("read %s: %w", name, err) }
        flat, err := flatten(b)
        if err != nil { return nil, fmt.Errorf("parse %s: %w", name, err) }
        for k, v := range flat {
            if prev, ok := owner[k]; ok {
                return nil, fmt.Errorf("message %q set in both %s and %s", k, prev, name)
            }
            owner[k] = name
            merged[k] = v
        }
    }
    return merged, nil
}

// flatten turns nested YAML maps into dot-separated keys. Leaves must be strings.
func flatten(b []byte) (map[string]string, error) {
    var root map[string]any
    if err := yaml.Unmarshal(b, &root); err != nil {
        return nil, err
    }
    out := make(map[string]string)
    var walk func(prefix string, v any) error
    walk = func(prefix string, v any) error {
        switch v := v.(type) {
        case map[string]any:
            for k, child := range v {
                key := k
                if prefix != "" { key = prefix + "." + k }
                if err := walk(key, child); err != nil { return err }
            }
        case string:
            if prefix == "" { return errors.New("message without a key") }
            out[prefix] = v
        case nil:
        default:
            return fmt.Errorf("%s: expected a string, got %T", prefix, v)
        }
        return nil
    }
    if err := walk("", root); err != nil {
        return nil, err
    }
    return out, nil
}

// Render executes the template stored under key.
func (c *Catalog) Render(key string, data any) (string, error) {
    t, ok := c.tpls[strings.TrimSpace(key)]
    if !ok {
        return "", fmt.Errorf("message not found: %s", key)
    }
    var b strings.Builder
    if err := t.Execute(&b, data); err != nil { return "", err }
    return b.String(), nil
}

// Text renders key and returns fallback when the key is missing or fails to render.
// A nil catalog always returns fallback.
func (c *Catalog) Text(key string, data any, fallback string) string {
    if c == nil {
        return fallback
    }
    out, err := c.Render(key, data)
    if err != nil || strings.TrimSpace(out) == "" {
        return fallback
    }
    return out
}

// Missing reports which of the required keys have no message, in the order given.
func (c *Catalog) Missing(required ...string) []string {
    var missing []string
    for _, key := range required {
        if c == nil {
            missing = append(missing, key)
            continue
        }
        if _, ok := c.tpls[key]; !ok {
            missing = append(missing, key)
        }
    }
    return missing
}
