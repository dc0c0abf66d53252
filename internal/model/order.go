package model

import "time"

// ==================== Order 订单（只读） ====================

// Order 结算后写入的订单，本服务只读取收件地址、客户信息和明细
type Order struct {
	ID            string    `gorm:"primaryKey;size:64" json:"id"`
	CustomerName  string    `gorm:"size:255" json:"customer_name"`
	CustomerEmail string    `gorm:"size:255" json:"customer_email"`
	ShipTo        Address   `gorm:"embedded;embeddedPrefix:ship_to_" json:"ship_to"`
	Currency      string    `gorm:"size:3;default:USD" json:"currency"`
	CreatedAt     time.Time `json:"created_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items"`
}

func (*Order) TableName() string {
	return "orders"
}

// OrderItem 订单明细
type OrderItem struct {
	ID             int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID        string `gorm:"size:64;index;not null" json:"order_id"`
	Description    string `gorm:"size:255" json:"description"`
	Quantity       int    `gorm:"not null;default:1" json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

func (*OrderItem) TableName() string {
	return "order_items"
}

// Destination 收件地址，邮箱缺省时取客户邮箱
func (o *Order) Destination() Address {
	addr := o.ShipTo
	if addr.Name == "" {
		addr.Name = o.CustomerName
	}
	if addr.Email == "" {
		addr.Email = o.CustomerEmail
	}
	return addr
}
