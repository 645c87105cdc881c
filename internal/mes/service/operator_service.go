package service

import (
	"context"
	"strings"

	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"go.uber.org/zap"
)

// OperatorService 作业员登记与身份解析
type OperatorService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewOperatorService(store repository.Store, logger *zap.Logger) *OperatorService {
	return &OperatorService{store: store, logger: logger}
}

type RegisterOperatorRequest struct {
	ID    string `json:"id" binding:"required"`
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
}

// Register 登记或更新作业员
func (s *OperatorService) Register(ctx context.Context, req RegisterOperatorRequest) (*entity.Operator, error) {
	op := &entity.Operator{
		ID:    strings.TrimSpace(req.ID),
		Name:  strings.TrimSpace(req.Name),
		Email: strings.TrimSpace(req.Email),
	}
	if op.ID == "" || op.Name == "" {
		return nil, entity.Invalidf("operator id and name are required")
	}
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		return tx.Operators().Save(ctx, op)
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}

// Resolve 按登录用户ID查找作业员。任何失败都返回 nil，报工以匿名身份继续
func (s *OperatorService) Resolve(ctx context.Context, userID string) *entity.Operator {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil
	}
	var op *entity.Operator
	err := s.store.InTx(ctx, func(tx repository.Tx) error {
		found, err := tx.Operators().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		op = found
		return nil
	})
	if err != nil {
		s.logger.Warn("operator unresolved, reporting anonymously",
			zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	return op
}
