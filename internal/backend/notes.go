package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

type Note struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id,omitempty"`
	FolderID  *string    `json:"folder_id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Message is one persisted chat turn entry.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id,omitempty"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Page selects a window of notes. Number starts at 0.
type Page struct {
	Number   int
	Size     int
	FolderID string
}

func (p Page) rangeHeader() string {
	size := p.Size
	if size <= 0 {
		size = 50
	}
	from := p.Number * size
	if from < 0 {
		from = 0
	}
	return fmt.Sprintf("%d-%d", from, from+size-1)
}

func (c *Client) restURL(table string, query url.Values) string {
	u := c.endpoint("/rest/v1/" + url.PathEscape(table))
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// ListNotes returns one page of notes, most recently updated first.
func (c *Client) ListNotes(ctx context.Context, page Page) ([]Note, error) {
	const op = "notes.list"
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "updated_at.desc")
	if page.FolderID != "" {
		q.Set("folder_id", "eq."+page.FolderID)
	}
	req, err := c.newRequest(ctx, http.MethodGet, c.restURL(c.cfg.NotesTable, q), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("accept", "application/json")
	req.Header.Set("range-unit", "items")
	req.Header.Set("range", page.rangeHeader())

	resp, err := c.do(op, c.httpClient, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	notes := []Note{}
	if err := json.NewDecoder(resp.Body).Decode(&notes); err != nil {
		return nil, fmt.Errorf("failed to decode notes: %w", err)
	}
	return notes, nil
}

// UpsertNote inserts note or merges it into the row with the same id. The
// note is attributed to the credential's subject when it carries no owner.
func (c *Client) UpsertNote(ctx context.Context, note Note) (Note, error) {
	const op = "notes.upsert"
	if note.UserID == "" {
		note.UserID = c.Subject()
	}
	body, err := json.Marshal([]Note{note})
	if err != nil {
		return Note{}, fmt.Errorf("failed to marshal note: %w", err)
	}
	q := url.Values{}
	q.Set("on_conflict", "id")
	req, err := c.newRequest(ctx, http.MethodPost, c.restURL(c.cfg.NotesTable, q), bytes.NewReader(body))
	if err != nil {
		return Note{}, err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("prefer", "resolution=merge-duplicates,return=representation")

	resp, err := c.do(op, c.httpClient, req)
	if err != nil {
		return Note{}, err
	}
	defer resp.Body.Close()

	var saved []Note
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		return Note{}, fmt.Errorf("failed to decode saved note: %w", err)
	}
	if len(saved) == 0 {
		return note, nil
	}
	return saved[0], nil
}

// DeleteNote removes the note with id. Deleting a missing note succeeds.
func (c *Client) DeleteNote(ctx context.Context, id string) error {
	const op = "notes.delete"
	q := url.Values{}
	q.Set("id", "eq."+id)
	req, err := c.newRequest(ctx, http.MethodDelete, c.restURL(c.cfg.NotesTable, q), nil)
	if err != nil {
		return err
	}
	req.Header.Set("prefer", "return=minimal")

	resp, err := c.do(op, c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}

// InsertMessages appends chat messages. Rows whose id already exists are
// left alone, so a retried insert does not duplicate the turn.
func (c *Client) InsertMessages(ctx context.Context, msgs []Message) error {
	const op = "messages.insert"
	if len(msgs) == 0 {
		return nil
	}
	for i := range msgs {
		if msgs[i].UserID == "" {
			msgs[i].UserID = c.Subject()
		}
	}
	body, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("failed to marshal messages: %w", err)
	}
	q := url.Values{}
	q.Set("on_conflict", "id")
	req, err := c.newRequest(ctx, http.MethodPost, c.restURL(c.cfg.MessagesTable, q), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("prefer", "resolution=ignore-duplicates,return=minimal")

	resp, err := c.do(op, c.httpClient, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return nil
}
