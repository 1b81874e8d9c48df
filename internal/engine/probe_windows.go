//go:build windows

package engine

import (
	"context"

	"github.com/Microsoft/go-winio"
)

func probePipe(ctx context.Context, path string) error {
	conn, err := winio.DialPipeContext(ctx, path)
	if err != nil {
		return err
	}
	return conn.Close()
}
