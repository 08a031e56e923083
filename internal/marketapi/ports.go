package marketapi

import "context"

// Credentials supplies the bearer token for each request.
type Credentials interface {
	Token() (string, error)
}

// CommentAPI is the port for the comment endpoints.
type CommentAPI interface {
	TopLevelComments(ctx context.Context, productID string, relevant bool) ([]CommentPayload, error)
	Replies(ctx context.Context, parentID string) ([]CommentPayload, error)
	CreateComment(ctx context.Context, productID, body string) (CommentPayload, error)
	CreateReply(ctx context.Context, parentID, body string) (CommentPayload, error)
	UpdateComment(ctx context.Context, commentID, body string) (CommentPayload, error)
	DeleteComment(ctx context.Context, commentID string) error
}

// LikeAPI is the port for the likes endpoints.
type LikeAPI interface {
	Likes(ctx context.Context) ([]LikePayload, error)
	AddLike(ctx context.Context, productID string) (LikePayload, error)
	RemoveLike(ctx context.Context, likeID string) error
}
