package air

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
)

// renderer renders "text/html" responses from parsed template files, using
// the `template.Template`.
type renderer struct {
	air *Air

	template        *template.Template
	templateFuncMap template.FuncMap
	minifier        *minify.M
	watcher         *fsnotify.Watcher
}

// newRenderer returns a pointer of a new instance of the `renderer`.
func newRenderer(a *Air) *renderer {
	r := &renderer{
		air:      a,
		template: template.New("template"),
		templateFuncMap: template.FuncMap{
			"strlen":  strlen,
			"strcat":  strcat,
			"substr":  substr,
			"timefmt": timefmt,
			"l": func(key string) string {
				return key
			},
		},
	}

	for name, f := range a.RendererTemplateFuncMap {
		r.templateFuncMap[name] = f
	}

	return r
}

// SetTemplateFunc sets the func f into the r's template func map with the
// name.
func (r *renderer) SetTemplateFunc(name string, f interface{}) {
	r.templateFuncMap[name] = f
}

// ParseTemplates parses all the template files found inside the
// `RendererTemplateRoot` of the a. It is called in `Air#Serve()`.
//
// e.g. r.air.RendererTemplateRoot == "templates" && r.air.RendererTemplateExts == []string{".html"}
//
// templates/
//   index.html
//   login.html
//   register.html
//
// templates/parts/
//   header.html
//   footer.html
//
// will be parsed into:
//
// "index.html", "login.html", "register.html", "parts/header.html", "parts/footer.html".
func (r *renderer) ParseTemplates() error {
	a := r.air

	if _, err := os.Stat(a.RendererTemplateRoot); err != nil && os.IsNotExist(err) {
		return nil
	}

	if a.MinifierEnabled && stringSliceContains(a.MinifierMIMETypes, "text/html", false) {
		r.minifier = minify.New()
		r.minifier.Add("text/html", &html.Minifier{
			KeepDefaultAttrVals: true,
			KeepDocumentTags:    true,
			KeepWhitespace:      true,
		})
	}

	if a.DebugMode {
		var err error
		if r.watcher, err = fsnotify.NewWatcher(); err != nil {
			return err
		}

		dirs, err := walkDirs(a.RendererTemplateRoot)
		if err != nil {
			return err
		}

		for _, dir := range dirs {
			if err := r.watcher.Add(dir); err != nil {
				return err
			}
		}

		go r.watchTemplates()
	}

	return r.parseTemplates()
}

// render renders the template named templateName with the data into the w,
// making localizedString available to it as the "l" template func.
func (r *renderer) render(
	w io.Writer,
	templateName string,
	data map[string]interface{},
	localizedString func(string) string,
) error {
	t, err := r.template.Clone()
	if err != nil {
		return err
	}

	t.Funcs(template.FuncMap{
		"l": localizedString,
	})

	return t.ExecuteTemplate(w, templateName, data)
}

// parseTemplates parses all template files.
func (r *renderer) parseTemplates() error {
	a := r.air

	tr := filepath.Clean(a.RendererTemplateRoot)
	if _, err := os.Stat(tr); err != nil && os.IsNotExist(err) {
		return nil
	}

	dirs, err := walkDirs(tr)
	if err != nil {
		return err
	}

	var filenames []string
	for _, dir := range dirs {
		for _, ext := range a.RendererTemplateExts {
			fns, err := filepath.Glob(fmt.Sprintf("%s/*%s", dir, ext))
			if err != nil {
				return err
			}
			filenames = append(filenames, fns...)
		}
	}

	buf := &bytes.Buffer{}

	t := template.New("template")
	t.Funcs(r.templateFuncMap)
	t.Funcs(a.RendererTemplateFuncMap)
	t.Delims(a.RendererTemplateLeftDelim, a.RendererTemplateRightDelim)

	for _, filename := range filenames {
		b, err := ioutil.ReadFile(filename)
		if err != nil {
			return err
		}

		if r.minifier != nil {
			err := r.minifier.Minify("text/html", buf, bytes.NewReader(b))
			if err != nil {
				return err
			}
			b = buf.Bytes()
			buf.Reset()
		}

		start := 0
		if tr != "." {
			start = len(tr) + 1
		}

		name := filepath.ToSlash(filename[start:])
		if _, err := t.New(name).Parse(string(b)); err != nil {
			return err
		}
	}

	r.template = t

	return nil
}

// watchTemplates watchs the changing of all template files.
func (r *renderer) watchTemplates() {
	for {
		select {
		case event := <-r.watcher.Events:
			r.air.logger.Info(event)

			if event.Op == fsnotify.Create {
				s := event.String()
				s = s[:strings.Index(s, ":")]
				s = s[1 : len(s)-1]
				if !stringSliceContains(r.air.RendererTemplateExts, filepath.Ext(s), false) {
					r.watcher.Add(s)
				}
			}

			if err := r.parseTemplates(); err != nil {
				r.air.logger.Error(err)
			}
		case err := <-r.watcher.Errors:
			r.air.logger.Error(err)
		}
	}
}

// walkDirs walks all subdirs of the root recursively.
func walkDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if info.IsDir() {
			dirs = append(dirs, path)
		}
		return err
	})
	return dirs, err
}

// strlen returns the number of chars in the s.
func strlen(s string) int {
	return len([]rune(s))
}

// strcat returns a string that is catenated to the tail of the s by the ss.
func strcat(s string, ss ...string) string {
	for i := range ss {
		s = fmt.Sprintf("%s%s", s, ss[i])
	}
	return s
}

// substr returns the substring consisting of the chars of the s starting at the index i and
// continuing up to, but not including, the char at the index j.
func substr(s string, i, j int) string {
	rs := []rune(s)
	return string(rs[i:j])
}

// timefmt returns a textual representation of the t formatted according to the layout.
func timefmt(t time.Time, layout string) string {
	return t.Format(layout)
}
