package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// restStorage talks to the storage REST API:
//
//	POST   /storage/v1/object/{bucket}/{path}
//	DELETE /storage/v1/object/{bucket}   {"prefixes": [...]}
type restStorage struct {
	c *Client
}

func (s *restStorage) objectURL(path string) string {
	segments := strings.Split(strings.TrimLeft(path, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return s.c.endpoint("/storage/v1/object/" + url.PathEscape(s.c.cfg.Bucket) + "/" + strings.Join(segments, "/"))
}

func (s *restStorage) Upload(ctx context.Context, obj Object) error {
	const op = "storage.upload"
	req, err := s.c.newRequest(ctx, http.MethodPost, s.objectURL(obj.Path), bytes.NewReader(obj.Data))
	if err != nil {
		return err
	}
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("content-type", contentType)
	req.Header.Set("cache-control", "max-age=3600")
	if obj.Upsert {
		req.Header.Set("x-upsert", "true")
	}
	req.ContentLength = int64(len(obj.Data))

	resp, err := s.c.do(op, s.c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	s.c.logger.Debug().
		Str("path", obj.Path).
		Str("content_type", contentType).
		Int("size", len(obj.Data)).
		Msg("Object uploaded")
	return nil
}

type removeRequest struct {
	Prefixes []string `json:"prefixes"`
}

func (s *restStorage) Remove(ctx context.Context, paths []string) error {
	const op = "storage.remove"
	body, err := json.Marshal(removeRequest{Prefixes: paths})
	if err != nil {
		return fmt.Errorf("failed to marshal remove request: %w", err)
	}
	endpoint := s.c.endpoint("/storage/v1/object/" + url.PathEscape(s.c.cfg.Bucket))
	req, err := s.c.newRequest(ctx, http.MethodDelete, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")

	resp, err := s.c.do(op, s.c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
