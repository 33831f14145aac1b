package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (c *Cart) BeforeCreate(*gorm.DB) error             { ensureID(&c.ID); return nil }
func (c *CartItem) BeforeCreate(*gorm.DB) error         { ensureID(&c.ID); return nil }
func (p *Product) BeforeCreate(*gorm.DB) error          { ensureID(&p.ID); return nil }
func (c *Coupon) BeforeCreate(*gorm.DB) error           { ensureID(&c.ID); return nil }
func (o *Order) BeforeCreate(*gorm.DB) error            { ensureID(&o.ID); return nil }
func (v *VendorOrder) BeforeCreate(*gorm.DB) error      { ensureID(&v.ID); return nil }
func (l *OrderLineItem) BeforeCreate(*gorm.DB) error    { ensureID(&l.ID); return nil }
func (e *OrderStatusEntry) BeforeCreate(*gorm.DB) error { ensureID(&e.ID); return nil }
