package data

import (
	"context"
	"fmt"

	"movieratings/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm/clause"
)

type userRepo struct {
	data *Data
	log  *log.Helper
}

// NewUserRepo creates a new user repository
func NewUserRepo(data *Data, logger log.Logger) biz.UserRepo {
	return &userRepo{
		data: data,
		log:  log.NewHelper(log.With(logger, "module", "data/user")),
	}
}

func (r *userRepo) GetOrCreateUser(ctx context.Context, clientIP string) (*biz.User, error) {
	created := r.data.DB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "clientip"}},
		DoNothing: true,
	}).Create(&User{ClientIP: clientIP})
	if created.Error != nil {
		return nil, fmt.Errorf("failed to create user: %w", created.Error)
	}
	if created.RowsAffected > 0 {
		r.log.Debugf("created user for %s", clientIP)
	}

	var u User
	if err := r.data.DB(ctx).Where("clientip = ?", clientIP).First(&u).Error; err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return userToBiz(&u), nil
}

func (r *userRepo) DeleteUser(ctx context.Context, id int64) error {
	return r.data.InTx(ctx, func(ctx context.Context) error {
		if err := r.data.DB(ctx).Where("user_id = ?", id).Delete(&Rating{}).Error; err != nil {
			return fmt.Errorf("failed to delete ratings: %w", err)
		}
		if err := r.data.DB(ctx).Delete(&User{}, id).Error; err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}
		return nil
	})
}
