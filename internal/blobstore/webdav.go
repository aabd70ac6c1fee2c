package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WebDAVStore implements Store over a WebDAV server. No corpus repo imports
// a WebDAV client library (DESIGN.md), so this speaks the small subset of
// the protocol spec.md §4.7 needs — PROPFIND depth 1, MKCOL, GET, PUT,
// DELETE — directly over net/http rather than pulling in an unrelated
// ecosystem dependency for five HTTP verbs.
type WebDAVStore struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

// NewWebDAV returns a Store against a WebDAV server at baseURL, preserving
// any base path baseURL carries.
func NewWebDAV(baseURL, username, password string) (*WebDAVStore, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse webdav base url: %w", err)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/")
	return &WebDAVStore{
		baseURL:  parsed.String(),
		username: username,
		password: password,
		client:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (w *WebDAVStore) TargetID() string {
	sum := sha256.Sum256([]byte("webdav:" + w.baseURL))
	return "webdav:" + hex.EncodeToString(sum[:8])
}

func (w *WebDAVStore) joinURL(p string) string {
	return w.baseURL + "/" + strings.TrimLeft(cleanPath(p), "/")
}

func cleanPath(p string) string {
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return p
}

func (w *WebDAVStore) newRequest(ctx context.Context, method, p string, body []byte, headers map[string]string) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, w.joinURL(p), reader)
	if err != nil {
		return nil, err
	}
	if w.username != "" {
		req.SetBasicAuth(w.username, w.password)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (w *WebDAVStore) MkdirAll(ctx context.Context, dir string) error {
	segments := strings.Split(strings.Trim(cleanPath(dir), "/"), "/")
	accum := ""
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if accum == "" {
			accum = seg
		} else {
			accum = accum + "/" + seg
		}
		req, err := w.newRequest(ctx, "MKCOL", accum, nil, nil)
		if err != nil {
			return err
		}
		resp, err := w.client.Do(req)
		if err != nil {
			return fmt.Errorf("webdav mkcol %s: %w", accum, err)
		}
		resp.Body.Close()
		// 201 Created, or 405/409 if it already exists.
		if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusMethodNotAllowed &&
			resp.StatusCode != http.StatusConflict && resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("webdav mkcol %s: status %d", accum, resp.StatusCode)
		}
	}
	return nil
}

type davMultistatus struct {
	XMLName   xml.Name     `xml:"multistatus"`
	Responses []davResonse `xml:"response"`
}

type davResonse struct {
	Href     string `xml:"href"`
	Propstat struct {
		Prop struct {
			ResourceType struct {
				Collection *struct{} `xml:"collection"`
			} `xml:"resourcetype"`
		} `xml:"prop"`
	} `xml:"propstat"`
}

func (w *WebDAVStore) List(ctx context.Context, dir string) ([]string, error) {
	req, err := w.newRequest(ctx, "PROPFIND", dir, nil, map[string]string{"Depth": "1"})
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webdav propfind %s: %w", dir, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != 207 && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webdav propfind %s: status %d", dir, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var ms davMultistatus
	if err := xml.Unmarshal(data, &ms); err != nil {
		return nil, fmt.Errorf("webdav propfind %s: parse multistatus: %w", dir, err)
	}

	reqPath, err := url.Parse(w.joinURL(dir))
	if err != nil {
		return nil, err
	}
	selfPath := strings.TrimRight(reqPath.Path, "/")

	var names []string
	for _, r := range ms.Responses {
		hrefURL, err := url.Parse(r.Href)
		if err != nil {
			continue
		}
		entryPath := strings.TrimRight(hrefURL.Path, "/")
		if entryPath == selfPath {
			continue // the collection entry describing dir itself
		}
		name := entryPath[strings.LastIndex(entryPath, "/")+1:]
		name, _ = url.PathUnescape(name)
		if r.Propstat.Prop.ResourceType.Collection != nil {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}

func (w *WebDAVStore) Get(ctx context.Context, p string) ([]byte, error) {
	req, err := w.newRequest(ctx, http.MethodGet, p, nil, nil)
	if err != nil {
		return nil, err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webdav get %s: %w", p, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webdav get %s: status %d", p, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (w *WebDAVStore) Put(ctx context.Context, p string, data []byte) error {
	req, err := w.newRequest(ctx, http.MethodPut, p, data, map[string]string{"Content-Type": "application/octet-stream"})
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webdav put %s: %w", p, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webdav put %s: status %d", p, resp.StatusCode)
	}
	return nil
}

func (w *WebDAVStore) Delete(ctx context.Context, p string) error {
	req, err := w.newRequest(ctx, http.MethodDelete, p, nil, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webdav delete %s: %w", p, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("webdav delete %s: status %d", p, resp.StatusCode)
	}
	return nil
}
