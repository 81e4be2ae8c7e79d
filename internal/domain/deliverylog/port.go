package deliverylog

import "context"

type Repo interface {
	Append(ctx context.Context, rec *Record) error
}
