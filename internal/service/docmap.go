package service

import (
	"github.com/beniforreal/nbti-client/internal/model"
	"github.com/beniforreal/nbti-client/internal/store"
)

// Collections owned by the application.
const (
	membersCollection = "members"
	photosCollection  = "photos"
	noticesCollection = "notices"
)

func memberFields(m model.Member) map[string]any {
	order := m.Order
	if order == 0 {
		order = model.DefaultOrder
	}
	status := m.Status
	if status == "" {
		status = model.StatusPending
	}
	fields := map[string]any{
		"name":   m.Name,
		"email":  m.Email,
		"avatar": m.Avatar,
		"role":   string(m.Role),
		"status": string(status),
		"order":  order,
		"bio":    m.Bio,
	}
	if len(m.Tags) > 0 {
		tags := make([]any, 0, len(m.Tags))
		for _, t := range m.Tags {
			tags = append(tags, t)
		}
		fields["tags"] = tags
	}
	return fields
}

func decodeMember(doc store.Document) model.Member {
	m := model.Member{
		ID:        doc.ID,
		Order:     model.DefaultOrder,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	m.Name, _ = doc.Fields["name"].(string)
	m.Email, _ = doc.Fields["email"].(string)
	m.Avatar, _ = doc.Fields["avatar"].(string)
	m.Bio, _ = doc.Fields["bio"].(string)
	if v, ok := doc.Fields["role"].(string); ok {
		m.Role = model.Role(v)
	}
	if v, ok := doc.Fields["status"].(string); ok {
		m.Status = model.Status(v)
	}
	if v := intDocField(doc.Fields, "order"); v > 0 {
		m.Order = v
	}
	if raw, ok := doc.Fields["tags"].([]any); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				m.Tags = append(m.Tags, s)
			}
		}
	}
	return m
}

func photoFields(p model.Photo) map[string]any {
	return map[string]any{
		"title":      p.Title,
		"url":        p.URL,
		"path":       p.Path,
		"uploadedBy": p.UploadedBy,
	}
}

func decodePhoto(doc store.Document) model.Photo {
	p := model.Photo{
		ID:        doc.ID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	p.Title, _ = doc.Fields["title"].(string)
	p.URL, _ = doc.Fields["url"].(string)
	p.Path, _ = doc.Fields["path"].(string)
	p.UploadedBy, _ = doc.Fields["uploadedBy"].(string)
	return p
}

func noticeFields(n model.Notice) map[string]any {
	return map[string]any{
		"title":   n.Title,
		"content": n.Content,
		"author":  n.Author,
	}
}

func decodeNotice(doc store.Document) model.Notice {
	n := model.Notice{
		ID:        doc.ID,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	n.Title, _ = doc.Fields["title"].(string)
	n.Content, _ = doc.Fields["content"].(string)
	n.Author, _ = doc.Fields["author"].(string)
	return n
}

func intDocField(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
