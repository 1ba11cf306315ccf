package infrastructure

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"stockpay/internal/service/inventory/domain"
)

const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

// productLookupTimeout 限制合并查询的最长时间，合并查询不跟随任何单个调用方的 ctx
const productLookupTimeout = 5 * time.Second

// GormProductRepository 是库存记录的 GORM 实现。
// Mutate 使用 SELECT ... FOR UPDATE 行锁，锁只覆盖被修改的那一行。
type GormProductRepository struct {
	db    *gorm.DB
	group singleflight.Group
}

func NewGormProductRepository(db *gorm.DB) *GormProductRepository {
	return &GormProductRepository{db: db}
}

// Mutate 在一个事务内锁定记录、执行 fn 并写回，提交事务时行锁释放。
func (r *GormProductRepository) Mutate(ctx context.Context, productID int64, fn func(*domain.StockRecord) error) (*domain.StockRecord, error) {
	var updated *domain.StockRecord
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model ProductModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&model, productID).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &domain.NotFoundError{ProductID: productID}
			}
			return err
		}

		record := toDomainStockRecord(&model)
		if err := fn(record); err != nil {
			return err
		}

		err = tx.Model(&ProductModel{}).
			Where("id = ?", productID).
			UpdateColumn("remaining_stock_count", record.RemainingStockCount).Error
		if err != nil {
			return err
		}
		updated = record
		return nil
	})
	if err != nil {
		// 事务内的 ctx 超时只可能发生在等行锁或写回时
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, pkgerrors.Wrap(domain.ErrStockLockTimeout, err.Error())
		}
		return nil, translateError(err, "mutate stock record")
	}
	return updated, nil
}

// FindByID 不加锁读取，只能配合外部锁或用于展示。
func (r *GormProductRepository) FindByID(ctx context.Context, productID int64) (*domain.StockRecord, error) {
	var model ProductModel
	err := r.db.WithContext(ctx).First(&model, productID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.NotFoundError{ProductID: productID}
		}
		return nil, translateError(err, "find product")
	}
	return toDomainStockRecord(&model), nil
}

// UpdateStockCount 是带条件的写回：WHERE 里带上读到的库存，
// 外部锁失效时并发写入不会互相覆盖。
func (r *GormProductRepository) UpdateStockCount(ctx context.Context, productID int64, expected, remaining int) error {
	res := r.db.WithContext(ctx).Model(&ProductModel{}).
		Where("id = ? AND remaining_stock_count = ?", productID, expected).
		UpdateColumn("remaining_stock_count", remaining)
	if res.Error != nil {
		return translateError(res.Error, "update stock count")
	}
	if res.RowsAffected > 0 {
		return nil
	}
	// 没有命中：要么记录不存在，要么库存已被改过
	if _, err := r.FindByID(ctx, productID); err != nil {
		return err
	}
	return domain.ErrStockConflict
}

// GetProduct 合并同一商品的并发查询。不做缓存，价格不会读到旧值。
// 合并的查询脱离发起者的 ctx 运行，每个调用方只等待自己的 ctx。
func (r *GormProductRepository) GetProduct(ctx context.Context, productID int64) (*domain.StockRecord, error) {
	ch := r.group.DoChan(strconv.FormatInt(productID, 10), func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), productLookupTimeout)
		defer cancel()
		return r.FindByID(lookupCtx, productID)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		cp := *res.Val.(*domain.StockRecord)
		return &cp, nil
	}
}

// Create 用于初始化数据和测试夹具。
func (r *GormProductRepository) Create(ctx context.Context, record *domain.StockRecord) error {
	model := ProductModel{
		ID:                  record.ID,
		Name:                record.Name,
		Description:         record.Description,
		Price:               record.Price,
		RemainingStockCount: record.RemainingStockCount,
	}
	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return translateError(err, "create product")
	}
	record.ID = model.ID
	return nil
}

// translateError 保留领域错误，把 MySQL 的锁等待超时与死锁归为 ErrStockLockTimeout。
// ctx 取消与超时原样包装，只有 Mutate 会把它们当作等锁超时。
func translateError(err error, op string) error {
	var (
		notFound   *domain.NotFoundError
		outOfStock *domain.OutOfStockError
	)
	if errors.As(err, &notFound) || errors.As(err, &outOfStock) || errors.Is(err, domain.ErrInvalidQuantity) {
		return err
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == mysqlErrLockWaitTimeout || myErr.Number == mysqlErrDeadlock) {
		return pkgerrors.Wrap(domain.ErrStockLockTimeout, myErr.Error())
	}
	return pkgerrors.Wrap(err, op)
}
