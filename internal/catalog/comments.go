package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CommentInput carries the author snapshot and text of a new comment.
type CommentInput struct {
	UserPhone      string
	UserNickname   string
	UserAvatar     string
	UserDepartment string
	Content        string
}

// AuthorFrom copies the profile fields of u into a comment input.
func AuthorFrom(u User, content string) CommentInput {
	return CommentInput{
		UserPhone:      u.Phone,
		UserNickname:   u.Nickname,
		UserAvatar:     u.AvatarURL,
		UserDepartment: u.Department,
		Content:        content,
	}
}

// AddComment posts a top-level guestbook comment.
func (s *Store) AddComment(ctx context.Context, in CommentInput) (Comment, error) {
	return s.insertComment(ctx, "", in)
}

// ReplyToComment appends a reply to a top-level comment. Replying to a reply
// attaches to that reply's parent so threads stay one level deep.
func (s *Store) ReplyToComment(ctx context.Context, parentID string, in CommentInput) (Comment, error) {
	var grandparent sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT parent_id FROM comments WHERE id = ?`, parentID).Scan(&grandparent)
	if errors.Is(err, sql.ErrNoRows) {
		return Comment{}, fmt.Errorf("%w: comment %q", ErrNotFound, parentID)
	}
	if err != nil {
		return Comment{}, fmt.Errorf("lookup comment: %w", err)
	}
	if grandparent.Valid {
		parentID = grandparent.String
	}
	return s.insertComment(ctx, parentID, in)
}

// LikeComment increments the like counter of a comment or reply.
func (s *Store) LikeComment(ctx context.Context, id string) (int, error) {
	var likes int
	err := s.db.QueryRowContext(ctx,
		`UPDATE comments SET likes = likes + 1 WHERE id = ? RETURNING likes`, id).Scan(&likes)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: comment %q", ErrNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("like comment: %w", err)
	}
	s.publish(EventComments)
	return likes, nil
}

// DeleteComment removes a comment and its replies.
func (s *Store) DeleteComment(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM comments WHERE id = ? OR parent_id = ?`, id, id)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: comment %q", ErrNotFound, id)
	}
	s.publish(EventComments)
	return nil
}

// ListComments returns top-level comments newest first, each with its
// replies oldest first.
func (s *Store) ListComments(ctx context.Context) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, parent_id, user_phone, user_nickname, user_avatar, user_department, content, likes, created_at
		FROM comments ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var (
		roots   []*Comment
		replies = make(map[string][]Comment)
	)
	for rows.Next() {
		var (
			c       Comment
			parent  sql.NullString
			created int64
		)
		if err := rows.Scan(&c.ID, &parent, &c.UserPhone, &c.UserNickname, &c.UserAvatar,
			&c.UserDepartment, &c.Content, &c.Likes, &created); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.Timestamp = time.UnixMilli(created).UTC()
		c.Replies = []Comment{}
		if parent.Valid {
			replies[parent.String] = append(replies[parent.String], c)
			continue
		}
		root := c
		roots = append(roots, &root)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}

	out := make([]Comment, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		root := roots[i]
		if r, ok := replies[root.ID]; ok {
			root.Replies = r
		}
		out = append(out, *root)
	}
	return out, nil
}

func (s *Store) insertComment(ctx context.Context, parentID string, in CommentInput) (Comment, error) {
	in.UserPhone = strings.TrimSpace(in.UserPhone)
	in.Content = strings.TrimSpace(in.Content)
	if in.UserPhone == "" {
		return Comment{}, fmt.Errorf("%w: comment author is required", ErrInvalid)
	}
	if in.Content == "" {
		return Comment{}, fmt.Errorf("%w: comment content is required", ErrInvalid)
	}
	c := Comment{
		ID:             uuid.NewString(),
		UserPhone:      in.UserPhone,
		UserNickname:   in.UserNickname,
		UserAvatar:     in.UserAvatar,
		UserDepartment: in.UserDepartment,
		Content:        in.Content,
		Timestamp:      time.UnixMilli(time.Now().UnixMilli()).UTC(),
		Replies:        []Comment{},
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO comments (id, parent_id, user_phone, user_nickname, user_avatar, user_department, content, likes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		c.ID, nullableString(parentID), c.UserPhone, c.UserNickname, c.UserAvatar, c.UserDepartment,
		c.Content, c.Timestamp.UnixMilli(),
	)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	s.publish(EventComments)
	return c, nil
}
