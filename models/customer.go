package models

import (
	"context"
	"time"

	"github.com/Roon627/ITnVend-sub003/config"
	"github.com/Roon627/ITnVend-sub003/utils"
)

type Customer struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"index;size:100;not null" json:"name" binding:"required"`
	Email     *string   `gorm:"size:100" json:"email"`
	Phone     *string   `gorm:"size:20" json:"phone"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name  string  `json:"name" binding:"required"`
	Email *string `json:"email"`
	Phone *string `json:"phone"`
}

func CreateCustomer(ctx context.Context, input *NewCustomer) (*Customer, error) {
	customer := Customer{
		Name:     input.Name,
		Email:    input.Email,
		Phone:    input.Phone,
		IsActive: utils.NewTrue(),
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func GetCustomer(ctx context.Context, id int) (*Customer, error) {
	customer, err := utils.FetchModel[Customer](ctx, id)
	if err != nil {
		if err == utils.ErrorRecordNotFound {
			return nil, &NotFoundError{Resource: "customer", Id: id}
		}
		return nil, err
	}
	return customer, nil
}

func GetCustomers(ctx context.Context) ([]*Customer, error) {
	return utils.FetchAllModels[Customer](ctx)
}
