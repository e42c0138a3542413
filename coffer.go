package air

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"io/ioutil"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/fsnotify/fsnotify"
)

// coffer is a binary asset file manager that uses runtime memory to reduce
// disk I/O pressure.
type coffer struct {
	a         *Air
	assets    *sync.Map
	cache     *fastcache.Cache
	watcher   *fsnotify.Watcher
	loadOnce  *sync.Once
	loadError error
}

// newCoffer returns a new instance of the `coffer` with the a.
func newCoffer(a *Air) *coffer {
	return &coffer{
		a:        a,
		assets:   &sync.Map{},
		loadOnce: &sync.Once{},
	}
}

// load builds the cache and starts watching the `CofferAssetRoot` of the c's
// a for changes. It is meant to be called exactly once, gated by the
// `loadOnce` of the c.
func (c *coffer) load() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		c.loadError = err
		return
	}

	c.cache = fastcache.New(c.a.CofferMaxMemoryBytes)
	c.watcher = watcher

	go c.watchAssets()
}

// watchAssets watches the changing of all cached asset files, evicting any
// that have changed or been removed from the cache.
func (c *coffer) watchAssets() {
	for {
		select {
		case e, ok := <-c.watcher.Events:
			if !ok {
				return
			}

			if c.a.CofferEnabled {
				c.a.logger.Debugj(map[string]interface{}{
					"message": "air: asset file event occurs",
					"file":    e.Name,
					"event":   e.Op.String(),
				})
			}

			if ai, ok := c.assets.Load(e.Name); ok {
				a := ai.(*asset)
				c.assets.Delete(a.name)
				c.cache.Del(a.contentChecksum[:])
				c.cache.Del(a.gzippedContentChecksum[:])
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}

			if c.a.CofferEnabled {
				c.a.logger.Errorj(map[string]interface{}{
					"message": "air: coffer watcher error",
					"error":   err.Error(),
				})
			}
		}
	}
}

// asset returns an `asset` from the c for the name.
func (c *coffer) asset(name string) (*asset, error) {
	c.loadOnce.Do(c.load)
	if c.loadError != nil {
		return nil, c.loadError
	}

	if ai, ok := c.assets.Load(name); ok {
		return ai.(*asset), nil
	} else if ar, err := filepath.Abs(c.a.CofferAssetRoot); err != nil {
		return nil, err
	} else if !strings.HasPrefix(name, ar) {
		return nil, nil
	}

	ext := filepath.Ext(name)
	if !stringSliceContains(c.a.CofferAssetExts, ext, true) {
		return nil, nil
	}

	fi, err := os.Stat(name)
	if err != nil {
		return nil, err
	}

	b, err := ioutil.ReadFile(name)
	if err != nil {
		return nil, err
	}

	var (
		mt       = mime.TypeByExtension(ext)
		minified bool
		gb       []byte
	)

	if mt != "" {
		mt, _, err := mime.ParseMediaType(mt)
		if err != nil {
			return nil, err
		}

		if c.a.MinifierEnabled &&
			stringSliceContains(c.a.MinifierMIMETypes, mt, false) {
			if b, err = c.a.minifier.minify(mt, b); err != nil {
				return nil, err
			}

			minified = true
		}

		if c.a.GzipEnabled &&
			stringSliceContains(c.a.GzipMIMETypes, mt, false) {
			buf := bytes.Buffer{}
			if gw, err := gzip.NewWriterLevel(
				&buf,
				c.a.GzipCompressionLevel,
			); err != nil {
				return nil, err
			} else if _, err = gw.Write(b); err != nil {
				return nil, err
			} else if err = gw.Close(); err != nil {
				return nil, err
			}

			gb = buf.Bytes()
		}
	}

	if err := c.watcher.Add(name); err != nil {
		return nil, err
	}

	a := &asset{
		coffer:          c,
		name:            name,
		mimeType:        mt,
		modTime:         fi.ModTime(),
		minified:        minified,
		contentChecksum: sha256.Sum256(b),
	}

	c.cache.Set(a.contentChecksum[:], b)
	if gb != nil {
		a.gzippedContentChecksum = sha256.Sum256(gb)
		c.cache.Set(a.gzippedContentChecksum[:], gb)
	}

	c.assets.Store(name, a)

	return a, nil
}

// asset is a binary asset file.
type asset struct {
	coffer                 *coffer
	name                   string
	mimeType               string
	modTime                time.Time
	minified               bool
	contentChecksum        [sha256.Size]byte
	gzippedContentChecksum [sha256.Size]byte
}

// content returns the content of the a, gzipped when gzipped is true.
func (a *asset) content(gzipped bool) []byte {
	var c []byte
	if gzipped {
		c = a.coffer.cache.Get(nil, a.gzippedContentChecksum[:])
	} else {
		c = a.coffer.cache.Get(nil, a.contentChecksum[:])
	}

	if len(c) == 0 {
		a.coffer.assets.Delete(a.name)
		a.coffer.cache.Del(a.contentChecksum[:])
		a.coffer.cache.Del(a.gzippedContentChecksum[:])
		return nil
	}

	return c
}
