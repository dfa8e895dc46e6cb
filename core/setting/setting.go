// Package setting stores the institution profile and receipt options as named values.
package setting

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core"
)

// Setting names
const (
	InstitutionName    = "institution_name"
	InstitutionAddress = "institution_address"
	InstitutionPhone   = "institution_phone"
	InstitutionEmail   = "institution_email"
	InstitutionWebsite = "institution_website"
	Currency           = "currency"
	ReceiptPrefix      = "receipt_prefix"
	ReceiptSignerTitle = "receipt_signer_title"
	ReceiptDisclaimer  = "receipt_disclaimer"
)

var (
	Defaults = map[string]string{
		InstitutionName:    "School",
		InstitutionAddress: "",
		InstitutionPhone:   "",
		InstitutionEmail:   "",
		InstitutionWebsite: "",
		Currency:           "USD",
		ReceiptPrefix:      "RCT",
		ReceiptSignerTitle: "Bursar",
		ReceiptDisclaimer:  "This is a computer generated receipt. Fees once paid are not refundable.",
	}

	maxLengths = map[string]int{
		InstitutionName:    200,
		InstitutionAddress: 500,
		InstitutionPhone:   30,
		InstitutionEmail:   254,
		InstitutionWebsite: 200,
		Currency:           3,
		ReceiptPrefix:      10,
		ReceiptSignerTitle: 100,
		ReceiptDisclaimer:  1000,
	}

	prefixRegex   = regexp.MustCompile(`^[A-Z0-9]{1,10}$`)
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
)

type Setting struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Profile is the typed view of the settings used to render receipts.
type Profile struct {
	InstitutionName    string `json:"institution_name"`
	InstitutionAddress string `json:"institution_address"`
	InstitutionPhone   string `json:"institution_phone"`
	InstitutionEmail   string `json:"institution_email"`
	InstitutionWebsite string `json:"institution_website"`
	Currency           string `json:"currency"`
	ReceiptPrefix      string `json:"receipt_prefix"`
	ReceiptSignerTitle string `json:"receipt_signer_title"`
	ReceiptDisclaimer  string `json:"receipt_disclaimer"`
}

// ProfileFrom builds a Profile from stored values, blank or missing ones take their default.
func ProfileFrom(values map[string]string) Profile {
	get := func(name string) string {
		if v := core.CleanString(values[name]); v != "" {
			return v
		}
		return Defaults[name]
	}
	return Profile{
		InstitutionName:    get(InstitutionName),
		InstitutionAddress: get(InstitutionAddress),
		InstitutionPhone:   get(InstitutionPhone),
		InstitutionEmail:   get(InstitutionEmail),
		InstitutionWebsite: get(InstitutionWebsite),
		Currency:           get(Currency),
		ReceiptPrefix:      get(ReceiptPrefix),
		ReceiptSignerTitle: get(ReceiptSignerTitle),
		ReceiptDisclaimer:  get(ReceiptDisclaimer),
	}
}

type Repository interface {
	QuerySettings(ctx context.Context, exec ...core.DBExecutor) ([]Setting, error)
	UpsertSettings(ctx context.Context, settings []Setting, exec ...core.DBExecutor) error
}

// Cache keeps the Profile between requests.
type Cache interface {
	GetProfile(ctx context.Context) (Profile, bool, error)
	SetProfile(ctx context.Context, p Profile) error
	Invalidate(ctx context.Context) error
}

type Service struct {
	tx     core.Transactor
	repo   Repository
	cache  Cache // optional
	logger core.Logger
}

func NewService(tx core.Transactor, repo Repository, cache Cache, logger core.Logger) *Service {
	return &Service{tx: tx, repo: repo, cache: cache, logger: logger}
}

// All returns every known setting, defaults included.
func (svc *Service) All(ctx context.Context) (map[string]string, error) {
	settings, err := svc.repo.QuerySettings(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying settings")
	}
	values := make(map[string]string, len(Defaults))
	for name, value := range Defaults {
		values[name] = value
	}
	for _, s := range settings {
		if _, known := Defaults[s.Name]; known {
			values[s.Name] = s.Value
		}
	}
	return values, nil
}

// Set validates and stores values. Unknown names are rejected.
func (svc *Service) Set(ctx context.Context, values map[string]string) (map[string]string, error) {
	cleaned, err := clean(values)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	settings := make([]Setting, 0, len(cleaned))
	for name, value := range cleaned {
		settings = append(settings, Setting{Name: name, Value: value, UpdatedAt: now})
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Name < settings[j].Name })

	err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
		return svc.repo.UpsertSettings(ctx, settings, exec)
	})
	if err != nil {
		return nil, errors.Wrap(err, "saving settings")
	}

	if svc.cache != nil {
		if err = svc.cache.Invalidate(ctx); err != nil {
			svc.logger.Warn(fmt.Sprintf("invalidating profile cache: %v", err), err)
		}
	}
	return svc.All(ctx)
}

type profileCtxKey struct{}

// ContextWithProfile returns a copy of ctx carrying p, Profile then skips the lookup.
func ContextWithProfile(ctx context.Context, p Profile) context.Context {
	return context.WithValue(ctx, profileCtxKey{}, p)
}

// Profile returns the institution profile: from ctx, then the cache, then the store.
func (svc *Service) Profile(ctx context.Context) (Profile, error) {
	if p, ok := ctx.Value(profileCtxKey{}).(Profile); ok {
		return p, nil
	}
	if svc.cache != nil {
		p, ok, err := svc.cache.GetProfile(ctx)
		if err != nil {
			svc.logger.Warn(fmt.Sprintf("reading profile cache: %v", err), err)
		} else if ok {
			return p, nil
		}
	}

	values, err := svc.All(ctx)
	if err != nil {
		return Profile{}, err
	}
	p := ProfileFrom(values)

	if svc.cache != nil {
		if err = svc.cache.SetProfile(ctx, p); err != nil {
			svc.logger.Warn(fmt.Sprintf("writing profile cache: %v", err), err)
		}
	}
	return p, nil
}

func clean(values map[string]string) (map[string]string, error) {
	cleaned := make(map[string]string, len(values))
	fields := make([]core.FieldError, 0)
	report := func(name, msg string) {
		fields = append(fields, core.FieldError{Field: name, Error: msg})
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := core.CleanString(values[name])
		maxLen, known := maxLengths[name]
		if !known {
			report(name, "unknown setting")
			continue
		}
		if len([]rune(value)) > maxLen {
			report(name, fmt.Sprintf("must be at most %d characters long", maxLen))
			continue
		}

		switch name {
		case InstitutionName:
			if value == "" {
				report(name, "this field is required")
				continue
			}
		case InstitutionEmail:
			if value != "" {
				if _, err := mail.ParseAddress(value); err != nil {
					report(name, "must be a valid email address")
					continue
				}
			}
		case Currency:
			if value != "" {
				value = strings.ToUpper(value)
				if !currencyRegex.MatchString(value) {
					report(name, "must be a 3 letter currency code")
					continue
				}
			}
		case ReceiptPrefix:
			if value != "" {
				value = strings.ToUpper(value)
				if !prefixRegex.MatchString(value) {
					report(name, "only letters and digits are allowed")
					continue
				}
			}
		}
		cleaned[name] = value
	}

	if len(fields) > 0 {
		return nil, core.NewValidationError(nil, fields...)
	}
	return cleaned, nil
}
