package feishu

import (
	"context"
	"encoding/json"
	"fmt"
)

// SendCard 向群聊发送消息卡片
func (c *Client) SendCard(ctx context.Context, chatID string, card InteractiveCard) error {
	content, err := json.Marshal(card)
	if err != nil {
		return fmt.Errorf("序列化卡片内容失败: %w", err)
	}
	msg := map[string]string{
		"receive_id": chatID,
		"msg_type":   "interactive",
		"content":    string(content),
	}
	if err := c.post(ctx, "/open-apis/im/v1/messages?receive_id_type=chat_id", msg, nil); err != nil {
		return fmt.Errorf("发送消息卡片失败: %w", err)
	}
	return nil
}

func shortField(label, value string) CardField {
	return CardField{IsShort: true, Text: CardText{Tag: "lark_md", Content: fmt.Sprintf("**%s**\n%s", label, value)}}
}

// NewMaterialShortageCard 报工倒冲缺料告警卡片
func NewMaterialShortageCard(materialCode, materialName string, required, available int, workOrderID int64, machineID string) InteractiveCard {
	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "⚠️ 产线缺料告警"},
			Template: "red",
		},
		Elements: []CardElement{
			{
				Tag: "div",
				Fields: []CardField{
					shortField("物料", fmt.Sprintf("%s (%s)", materialName, materialCode)),
					shortField("工单", fmt.Sprintf("#%d", workOrderID)),
					shortField("单件用量", fmt.Sprintf("%d", required)),
					shortField("当前库存", fmt.Sprintf("%d", available)),
					shortField("设备", machineID),
				},
			},
			{Tag: "hr"},
			{
				Tag: "note",
				Elements: []CardElement{
					{Tag: "plain_text", Content: "该件报工已回滚，请尽快补料后重新报工"},
				},
			},
		},
	}
}

// NewOrderCompletedCard 工单完工通知卡片
func NewOrderCompletedCard(workOrderID int64, productCode string, targetQty int, machineID string) InteractiveCard {
	return InteractiveCard{
		Config: &CardConfig{WideScreenMode: true},
		Header: &CardHeader{
			Title:    CardText{Tag: "plain_text", Content: "✅ 工单完工"},
			Template: "green",
		},
		Elements: []CardElement{
			{
				Tag: "div",
				Fields: []CardField{
					shortField("工单", fmt.Sprintf("#%d", workOrderID)),
					shortField("产品", productCode),
					shortField("数量", fmt.Sprintf("%d", targetQty)),
					shortField("设备", machineID),
				},
			},
		},
	}
}
