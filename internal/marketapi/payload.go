package marketapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ID is an identifier the API may send either as a JSON string or as a
// JSON number. It is always held in string form; null decodes to "".
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*id = ""
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("marketapi: id %s is neither string nor number", b)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// CommentPayload is a comment as it appears on the wire. Endpoint
// revisions disagree on field names, so every known variant is listed;
// the comments package folds them into one shape.
type CommentPayload struct {
	ID            ID     `json:"id"`
	Code          ID     `json:"code"`
	Comment       string `json:"comment"`
	Body          string `json:"body"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	ProductID     ID     `json:"productId"`
	ProductCode   ID     `json:"productCode"`
	ParentID      ID     `json:"parentId"`
	ResponseCount *int   `json:"responseCount"`
	ReplyCount    *int   `json:"replyCount"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

// LikePayload is one entry of the user's likes. Older revisions name the
// product reference "product", newer ones "productId".
type LikePayload struct {
	ID        ID `json:"id"`
	Product   ID `json:"product"`
	ProductID ID `json:"productId"`
}

// ProductRef returns whichever product field was populated.
func (l LikePayload) ProductRef() string {
	if l.ProductID != "" {
		return string(l.ProductID)
	}
	return string(l.Product)
}

type createCommentRequest struct {
	ProductID string `json:"productId"`
	Comment   string `json:"comment"`
}

type commentBodyRequest struct {
	Comment string `json:"comment"`
}

type addLikeRequest struct {
	ProductID string `json:"productId"`
}
