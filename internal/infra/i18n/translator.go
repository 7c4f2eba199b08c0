package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"momo-billing/internal/domain/model"
)

//go:embed locales
var LocalesFS embed.FS

const DefaultLang = "en"

// Translator holds one language's messages.
type Translator struct {
	lang         string
	translations map[string]string
}

// NewTranslator loads locales/<langCode>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", langCode+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = langCode
	return t, nil
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T returns the message for key, or key itself when missing.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

func (t *Translator) Lang() string { return t.lang }

// StatusMessage is the user-facing text for a payment status.
func (t *Translator) StatusMessage(s model.PaymentStatus, reason string) string {
	switch s {
	case model.PaymentStatusPending, model.PaymentStatusProcessing, model.PaymentStatusCompleted:
		return t.T("status." + string(s))
	case model.PaymentStatusFailed:
		if reason != "" {
			return t.T("status.failed_reason", reason)
		}
		return t.T("status.failed")
	}
	return t.T("status.unknown")
}

// Catalog picks a Translator by language, falling back to DefaultLang.
type Catalog struct {
	byLang map[string]*Translator
}

// LoadCatalog loads every listed language from the embedded locales.
func LoadCatalog(langs ...string) (*Catalog, error) {
	if len(langs) == 0 {
		langs = []string{DefaultLang, "fr"}
	}
	c := &Catalog{byLang: make(map[string]*Translator, len(langs))}
	for _, l := range langs {
		t, err := NewTranslator(LocalesFS, l)
		if err != nil {
			return nil, err
		}
		c.byLang[l] = t
	}
	if _, ok := c.byLang[DefaultLang]; !ok {
		return nil, fmt.Errorf("catalog must include %q", DefaultLang)
	}
	return c, nil
}

// MustLoadCatalog loads the default languages and panics on a broken embed.
func MustLoadCatalog() *Catalog {
	c, err := LoadCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// For resolves an Accept-Language header value such as "fr-CM,fr;q=0.9,en;q=0.5".
// Quality weights are ignored; the first known language wins.
func (c *Catalog) For(acceptLanguage string) *Translator {
	for _, part := range strings.Split(acceptLanguage, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		base := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if t, ok := c.byLang[base]; ok {
			return t
		}
	}
	return c.byLang[DefaultLang]
}
