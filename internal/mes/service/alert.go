package service

import (
	"context"

	"github.com/bitfantasy/nimo-mes/internal/mes/eventbus"
	"github.com/bitfantasy/nimo-mes/internal/shared/feishu"
)

// CardSender 发送飞书卡片
type CardSender interface {
	SendCard(ctx context.Context, chatID string, card feishu.InteractiveCard) error
}

// FeishuAlerter 缺料与完工事件推送到飞书群
type FeishuAlerter struct {
	sender CardSender
	chatID string
}

func NewFeishuAlerter(sender CardSender, chatID string) *FeishuAlerter {
	return &FeishuAlerter{sender: sender, chatID: chatID}
}

var _ eventbus.Publisher = (*FeishuAlerter)(nil)

func (a *FeishuAlerter) Publish(ctx context.Context, event eventbus.Event) error {
	switch p := event.Payload.(type) {
	case ShortagePayload:
		card := feishu.NewMaterialShortageCard(p.MaterialCode, p.MaterialName, p.Required, p.Available, p.OrderID, p.MachineID)
		return a.sender.SendCard(ctx, a.chatID, card)
	case OrderPayload:
		if event.Type != eventbus.EventOrderCompleted {
			return nil
		}
		card := feishu.NewOrderCompletedCard(p.OrderID, p.ProductCode, p.TargetQty, p.MachineID)
		return a.sender.SendCard(ctx, a.chatID, card)
	}
	return nil
}
