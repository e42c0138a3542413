package air

import (
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/text/language"
)

// i18n is a locale manager that adapts to the request's favorite conventions.
type i18n struct {
	a         *Air
	locales   map[string]map[string]string
	matcher   language.Matcher
	watcher   *fsnotify.Watcher
	loadOnce  *sync.Once
	loadError error
}

// newI18n returns a new instance of the `i18n` with the a.
func newI18n(a *Air) *i18n {
	return &i18n{
		a:        a,
		loadOnce: &sync.Once{},
	}
}

// load loads all the locale files found inside the `I18nLocaleRoot` of the a
// and starts watching that directory for changes. It is meant to be called
// exactly once, gated by the `loadOnce` of the i.
func (i *i18n) load() {
	lr, err := filepath.Abs(i.a.I18nLocaleRoot)
	if err != nil {
		i.loadError = err
		return
	}

	lfns, err := filepath.Glob(filepath.Join(lr, "*.toml"))
	if err != nil {
		i.loadError = err
		return
	}

	locales := make(map[string]map[string]string, len(lfns))
	tags := make([]language.Tag, 0, len(lfns))
	for _, lfn := range lfns {
		b, err := ioutil.ReadFile(lfn)
		if err != nil {
			i.loadError = err
			return
		}

		l := map[string]string{}
		if err := toml.Unmarshal(b, &l); err != nil {
			i.loadError = err
			return
		}

		t, err := language.Parse(strings.TrimSuffix(
			filepath.Base(lfn),
			".toml",
		))
		if err != nil {
			i.loadError = err
			return
		}

		locales[t.String()] = l
		tags = append(tags, t)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		i.loadError = err
		return
	}

	if err := watcher.Add(lr); err != nil {
		watcher.Close()
		i.loadError = err
		return
	}

	i.locales = locales
	i.matcher = language.NewMatcher(tags)
	i.watcher = watcher

	go i.watchLocales()
}

// watchLocales watches the changing of all locale files, causing the next
// `localize` call to reload them.
func (i *i18n) watchLocales() {
	for {
		select {
		case e, ok := <-i.watcher.Events:
			if !ok {
				return
			}

			if i.a.I18nEnabled {
				i.a.logger.Debugj(map[string]interface{}{
					"message": "air: locale file event occurs",
					"file":    e.Name,
					"event":   e.Op.String(),
				})
			}

			i.loadOnce = &sync.Once{}
		case err, ok := <-i.watcher.Errors:
			if !ok {
				return
			}

			if i.a.I18nEnabled {
				i.a.logger.Errorj(map[string]interface{}{
					"message": "air: i18n watcher error",
					"error":   err.Error(),
				})
			}
		}
	}
}

// localize localizes the r.
func (i *i18n) localize(r *Request) {
	i.loadOnce.Do(i.load)

	if i.loadError != nil {
		if i.a.I18nEnabled {
			i.a.logger.Errorj(map[string]interface{}{
				"message": fmt.Sprintf(
					"air: failed to load locales: %v",
					i.loadError,
				),
			})
		}

		r.localizedString = func(key string) string {
			return key
		}

		return
	}

	t, _ := language.MatchStrings(i.matcher, r.Header["Accept-Language"]...)
	l := i.locales[t.String()]

	r.localizedString = func(key string) string {
		if v, ok := l[key]; ok {
			return v
		} else if v, ok := i.locales[i.a.I18nLocaleBase][key]; ok {
			return v
		}

		return key
	}
}
