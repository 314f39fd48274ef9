package archive

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Coordinator files agreements into boxes.
type Coordinator struct {
	store  TxStore
	opts   Options
	logger *zap.Logger
}

// NewCoordinator creates a coordinator over store.
func NewCoordinator(store TxStore, opts Options, logger *zap.Logger) *Coordinator {
	return &Coordinator{store: store, opts: opts, logger: logger}
}

// Assign archives the agreement into req.BoxName and counts it against the
// active box of req.BoxType. Both updates commit together or not at all.
//
// An unknown agreement fails with ErrAgreementNotFound before the box is
// touched. An agreement that is already archived fails with ErrAgreementArchived.
func (c *Coordinator) Assign(ctx context.Context, req AssignRequest) error {
	req.AgreementNumber = strings.TrimSpace(req.AgreementNumber)
	req.BoxType = strings.TrimSpace(req.BoxType)
	req.BoxName = strings.TrimSpace(req.BoxName)
	if req.AgreementNumber == "" || req.BoxType == "" || req.BoxName == "" {
		return fmt.Errorf("%w: agreement number, box name and box type are required", ErrInvalidInput)
	}

	err := c.opts.do(ctx, "assign agreement", func(ctx context.Context) error {
		return c.store.WithTx(ctx, func(tx Tx) error {
			if err := tx.ArchiveAgreement(ctx, req.AgreementNumber, req.BoxName, req.DokID); err != nil {
				return err
			}
			return tx.IncrementItemCount(ctx, req.BoxType)
		})
	})
	if err != nil {
		return err
	}

	c.logger.Info("agreement archived",
		zap.String("agreement", req.AgreementNumber),
		zap.String("box_name", req.BoxName),
		zap.String("box_type", req.BoxType),
		zap.String("dok_id", req.DokID))
	return nil
}
