package app

import (
	"fmt"
	"strings"
	"time"

	"audioscribe/internal/util"
	"audioscribe/pkg/domain"
)

// CreateLanguage registers a transcription language.
func (a *App) CreateLanguage(code, name string) (domain.Language, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return domain.Language{}, fmt.Errorf("language code and name required")
	}
	if _, taken, err := a.store.GetLanguageByCode(code); err != nil {
		return domain.Language{}, fmt.Errorf("check language code: %w", err)
	} else if taken {
		return domain.Language{}, ErrLanguageCodeTaken
	}
	lang := domain.Language{
		ID:        util.NewID(),
		Code:      code,
		Name:      name,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.store.SaveLanguage(lang); err != nil {
		return domain.Language{}, fmt.Errorf("save language: %w", err)
	}
	return lang, nil
}

// ListLanguages returns all languages.
func (a *App) ListLanguages() ([]domain.Language, error) {
	return a.store.ListLanguages()
}

// UpdateLanguage renames a language or toggles its availability. The
// code is immutable once any project references the language.
func (a *App) UpdateLanguage(id string, code, name *string, isActive *bool) (domain.Language, error) {
	lang, ok, err := a.store.GetLanguage(id)
	if err != nil {
		return domain.Language{}, fmt.Errorf("fetch language: %w", err)
	}
	if !ok {
		return domain.Language{}, ErrLanguageNotFound
	}
	if code != nil {
		next := strings.ToLower(strings.TrimSpace(*code))
		if next != lang.Code {
			refs, err := a.store.CountProjectsForLanguage(id)
			if err != nil {
				return domain.Language{}, fmt.Errorf("count references: %w", err)
			}
			if refs > 0 {
				return domain.Language{}, ErrLanguageInUse
			}
			if _, taken, err := a.store.GetLanguageByCode(next); err != nil {
				return domain.Language{}, fmt.Errorf("check language code: %w", err)
			} else if taken {
				return domain.Language{}, ErrLanguageCodeTaken
			}
			lang.Code = next
		}
	}
	if name != nil && strings.TrimSpace(*name) != "" {
		lang.Name = strings.TrimSpace(*name)
	}
	if isActive != nil {
		lang.IsActive = *isActive
	}
	if err := a.store.SaveLanguage(lang); err != nil {
		return domain.Language{}, fmt.Errorf("save language: %w", err)
	}
	return lang, nil
}

// DeleteLanguage removes a language that no project references.
func (a *App) DeleteLanguage(id string) error {
	if _, ok, err := a.store.GetLanguage(id); err != nil {
		return fmt.Errorf("fetch language: %w", err)
	} else if !ok {
		return ErrLanguageNotFound
	}
	refs, err := a.store.CountProjectsForLanguage(id)
	if err != nil {
		return fmt.Errorf("count references: %w", err)
	}
	if refs > 0 {
		return ErrLanguageInUse
	}
	return a.store.DeleteLanguage(id)
}
