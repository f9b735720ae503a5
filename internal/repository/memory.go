package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmeshcher/carrental-system/internal/model"
)

// MemoryRepository хранит данные в памяти процесса. Используется без DATABASE_URI и в тестах.
//
// Записи блокируются поштучно на время транзакции, так что операции над
// разными автомобилями и пользователями не сериализуют друг друга.
type MemoryRepository struct {
	mu        sync.RWMutex
	users     map[int64]model.User
	providers map[int64]model.Provider
	cars      map[int64]model.Car
	rents     map[int64]model.Rent
	nextID    int64

	locks   keyedLocks
	timeout time.Duration
}

// NewMemoryRepository создаёт пустое хранилище. timeout ограничивает ожидание блокировок транзакцией.
func NewMemoryRepository(timeout time.Duration) *MemoryRepository {
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	return &MemoryRepository{
		users:     make(map[int64]model.User),
		providers: make(map[int64]model.Provider),
		cars:      make(map[int64]model.Car),
		rents:     make(map[int64]model.Rent),
		locks:     keyedLocks{m: make(map[string]chan struct{})},
		timeout:   timeout,
	}
}

// Close ничего не делает.
func (r *MemoryRepository) Close() error { return nil }

func (r *MemoryRepository) id() int64 {
	r.nextID++
	return r.nextID
}

// InTx выполняет fn под поштучными блокировками записей. При ошибке изменения откатываются.
func (r *MemoryRepository) InTx(ctx context.Context, fn TxFunc) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx := &memTx{repo: r, held: make(map[string]bool)}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// CreateUser создаёт нового пользователя.
func (r *MemoryRepository) CreateUser(_ context.Context, u *model.User) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return 0, fmt.Errorf("%w: user with email %s already exists", model.ErrConflict, u.Email)
		}
	}

	stored := *u
	stored.ID = r.id()
	if stored.Role == "" {
		stored.Role = model.RoleUser
	}
	stored.CreatedAt = time.Now().UTC()
	r.users[stored.ID] = stored
	return stored.ID, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", model.ErrNotFound, id)
	}
	return &u, nil
}

// GetUserByEmail возвращает пользователя по email.
func (r *MemoryRepository) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", model.ErrNotFound, email)
}

// CreateProvider создаёт нового провайдера.
func (r *MemoryRepository) CreateProvider(_ context.Context, p *model.Provider) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.providers {
		if strings.EqualFold(existing.Email, p.Email) {
			return 0, fmt.Errorf("%w: provider with email %s already exists", model.ErrConflict, p.Email)
		}
	}

	stored := *p
	stored.ID = r.id()
	stored.CreatedAt = time.Now().UTC()
	r.providers[stored.ID] = stored
	return stored.ID, nil
}

// GetProviderByID возвращает провайдера по идентификатору.
func (r *MemoryRepository) GetProviderByID(_ context.Context, id int64) (*model.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: provider %d", model.ErrNotFound, id)
	}
	return &p, nil
}

// GetProviderByEmail возвращает провайдера по email.
func (r *MemoryRepository) GetProviderByEmail(_ context.Context, email string) (*model.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.providers {
		if strings.EqualFold(p.Email, email) {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("%w: provider %s", model.ErrNotFound, email)
}

// ListProviders возвращает всех провайдеров по возрастанию id.
func (r *MemoryRepository) ListProviders(_ context.Context) ([]model.Provider, error) {
	r.mu.RLock()
	res := make([]model.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		res = append(res, p)
	}
	r.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// ListUsersByRole возвращает пользователей с ролью role по возрастанию id.
func (r *MemoryRepository) ListUsersByRole(_ context.Context, role model.Role) ([]model.User, error) {
	r.mu.RLock()
	var res []model.User
	for _, u := range r.users {
		if u.Role == role {
			res = append(res, u)
		}
	}
	r.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// CreateCar добавляет автомобиль.
func (r *MemoryRepository) CreateCar(_ context.Context, c *model.Car) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[c.ProviderID]; !ok {
		return 0, fmt.Errorf("%w: provider %d", model.ErrNotFound, c.ProviderID)
	}
	for _, existing := range r.cars {
		if existing.LicensePlate == c.LicensePlate {
			return 0, fmt.Errorf("%w: car with license plate %s already exists", model.ErrConflict, c.LicensePlate)
		}
	}

	stored := *c
	stored.ID = r.id()
	stored.CreatedAt = time.Now().UTC()
	c.CreatedAt = stored.CreatedAt
	r.cars[stored.ID] = stored
	return stored.ID, nil
}

// GetCar возвращает автомобиль по идентификатору.
func (r *MemoryRepository) GetCar(_ context.Context, id int64) (*model.Car, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cars[id]
	if !ok {
		return nil, fmt.Errorf("%w: car %d", model.ErrNotFound, id)
	}
	return &c, nil
}

// ListCars возвращает автомобили по фильтру, новые модели первыми.
func (r *MemoryRepository) ListCars(_ context.Context, f model.CarFilter) ([]model.Car, error) {
	r.mu.RLock()
	var res []model.Car
	for _, c := range r.cars {
		if f.ProviderID != nil && c.ProviderID != *f.ProviderID {
			continue
		}
		if f.Available != nil && c.Available != *f.Available {
			continue
		}
		if f.MaxTier != nil && c.Tier > *f.MaxTier {
			continue
		}
		res = append(res, c)
	}
	r.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		if !res[i].ManufactureDate.Equal(res[j].ManufactureDate) {
			return res[i].ManufactureDate.After(res[j].ManufactureDate)
		}
		return res[i].ID < res[j].ID
	})

	if f.Offset >= len(res) {
		return nil, nil
	}
	res = res[f.Offset:]
	if f.Limit > 0 && f.Limit < len(res) {
		res = res[:f.Limit]
	}
	return res, nil
}

// ListCarIDs возвращает идентификаторы всех автомобилей.
func (r *MemoryRepository) ListCarIDs(_ context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.cars))
	for id := range r.cars {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// GetRent возвращает аренду по идентификатору.
func (r *MemoryRepository) GetRent(_ context.Context, id int64) (*model.Rent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rent, ok := r.rents[id]
	if !ok {
		return nil, fmt.Errorf("%w: rent %d", model.ErrNotFound, id)
	}
	return &rent, nil
}

// ListRents возвращает аренды по фильтру, новые первыми.
func (r *MemoryRepository) ListRents(_ context.Context, f model.RentFilter) ([]model.Rent, error) {
	r.mu.RLock()
	var res []model.Rent
	for _, rent := range r.rents {
		if f.UserID != nil && rent.UserID != *f.UserID {
			continue
		}
		if f.CarID != nil && rent.CarID != *f.CarID {
			continue
		}
		if f.ProviderID != nil && r.cars[rent.CarID].ProviderID != *f.ProviderID {
			continue
		}
		res = append(res, rent)
	}
	r.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID > res[j].ID
	})
	return res, nil
}

// keyedLocks хранит набор блокировок по ключу с ожиданием, ограниченным контекстом.
type keyedLocks struct {
	mu sync.Mutex
	m  map[string]chan struct{}
}

func (k *keyedLocks) get(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()

	ch, ok := k.m[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.m[key] = ch
	}
	return ch
}

func (k *keyedLocks) lock(ctx context.Context, key string) error {
	select {
	case k.get(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: lock %s: %v", model.ErrTransient, key, ctx.Err())
	}
}

func (k *keyedLocks) unlock(key string) {
	<-k.get(key)
}

// memTx реализует Tx для MemoryRepository.
type memTx struct {
	repo  *MemoryRepository
	held  map[string]bool
	order []string
	undo  []func()
}

func (t *memTx) acquire(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}
	if err := t.repo.locks.lock(ctx, key); err != nil {
		return err
	}
	t.held[key] = true
	t.order = append(t.order, key)
	return nil
}

func (t *memTx) release() {
	for i := len(t.order) - 1; i >= 0; i-- {
		t.repo.locks.unlock(t.order[i])
	}
	t.order = nil
	t.held = nil
}

func (t *memTx) rollback() {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) LockProvider(ctx context.Context, id int64) (*model.Provider, error) {
	if err := t.acquire(ctx, fmt.Sprintf("provider:%d", id)); err != nil {
		return nil, err
	}
	return t.repo.GetProviderByID(ctx, id)
}

func (t *memTx) LockUser(ctx context.Context, id int64) (*model.User, error) {
	if err := t.acquire(ctx, fmt.Sprintf("user:%d", id)); err != nil {
		return nil, err
	}
	return t.repo.GetUserByID(ctx, id)
}

func (t *memTx) LockCar(ctx context.Context, id int64) (*model.Car, error) {
	if err := t.acquire(ctx, fmt.Sprintf("car:%d", id)); err != nil {
		return nil, err
	}
	return t.repo.GetCar(ctx, id)
}

func (t *memTx) LockProviderCars(ctx context.Context, providerID int64) ([]model.Car, error) {
	t.repo.mu.RLock()
	var ids []int64
	for id, c := range t.repo.cars {
		if c.ProviderID == providerID {
			ids = append(ids, id)
		}
	}
	t.repo.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	cars := make([]model.Car, 0, len(ids))
	for _, id := range ids {
		c, err := t.LockCar(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		cars = append(cars, *c)
	}
	return cars, nil
}

func (t *memTx) LockRent(ctx context.Context, id int64) (*model.Rent, error) {
	if err := t.acquire(ctx, fmt.Sprintf("rent:%d", id)); err != nil {
		return nil, err
	}
	return t.repo.GetRent(ctx, id)
}

func (t *memTx) CountOpenRentsByUser(_ context.Context, userID int64) (int, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()

	n := 0
	for _, rent := range t.repo.rents {
		if rent.UserID == userID && rent.Status.IsOpen() {
			n++
		}
	}
	return n, nil
}

func (t *memTx) FindOverlappingRent(_ context.Context, carID int64, start, end time.Time) (*model.Rent, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()

	var found *model.Rent
	for _, rent := range t.repo.rents {
		if rent.CarID != carID || !rent.Status.IsOpen() || !rent.Overlaps(start, end) {
			continue
		}
		if found == nil || rent.StartDate.Before(found.StartDate) {
			found = &rent
		}
	}
	return found, nil
}

func (t *memTx) HasOpenRents(_ context.Context, carID int64) (bool, error) {
	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()

	for _, rent := range t.repo.rents {
		if rent.CarID == carID && rent.Status.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (t *memTx) InsertRent(_ context.Context, rent *model.Rent) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	if _, ok := t.repo.cars[rent.CarID]; !ok {
		return fmt.Errorf("%w: car %d", model.ErrNotFound, rent.CarID)
	}
	if _, ok := t.repo.users[rent.UserID]; !ok {
		return fmt.Errorf("%w: user %d", model.ErrNotFound, rent.UserID)
	}

	rent.ID = t.repo.id()
	t.repo.rents[rent.ID] = *rent

	id := rent.ID
	t.undo = append(t.undo, func() { delete(t.repo.rents, id) })
	return nil
}

func (t *memTx) UpdateRent(_ context.Context, rent *model.Rent) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	prev, ok := t.repo.rents[rent.ID]
	if !ok {
		return fmt.Errorf("%w: rent %d", model.ErrNotFound, rent.ID)
	}

	next := prev
	next.Status = rent.Status
	next.ActualReturnDate = rent.ActualReturnDate
	next.AdditionalChargesCents = rent.AdditionalChargesCents
	next.Notes = rent.Notes
	t.repo.rents[rent.ID] = next

	t.undo = append(t.undo, func() { t.repo.rents[prev.ID] = prev })
	return nil
}

func (t *memTx) SetCarAvailability(_ context.Context, carID int64, available bool) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	prev, ok := t.repo.cars[carID]
	if !ok {
		return fmt.Errorf("%w: car %d", model.ErrNotFound, carID)
	}

	next := prev
	next.Available = available
	t.repo.cars[carID] = next

	t.undo = append(t.undo, func() { t.repo.cars[prev.ID] = prev })
	return nil
}

func (t *memTx) UpdateCar(_ context.Context, car *model.Car) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	prev, ok := t.repo.cars[car.ID]
	if !ok {
		return fmt.Errorf("%w: car %d", model.ErrNotFound, car.ID)
	}

	next := prev
	next.Brand = car.Brand
	next.Model = car.Model
	next.Color = car.Color
	next.DailyRateCents = car.DailyRateCents
	next.Tier = car.Tier
	t.repo.cars[car.ID] = next

	t.undo = append(t.undo, func() { t.repo.cars[prev.ID] = prev })
	return nil
}

func (t *memTx) DeleteCar(_ context.Context, carID int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	prev, ok := t.repo.cars[carID]
	if !ok {
		return fmt.Errorf("%w: car %d", model.ErrNotFound, carID)
	}

	var removed []model.Rent
	for id, rent := range t.repo.rents {
		if rent.CarID == carID {
			removed = append(removed, rent)
			delete(t.repo.rents, id)
		}
	}
	delete(t.repo.cars, carID)

	t.undo = append(t.undo, func() {
		t.repo.cars[prev.ID] = prev
		for _, rent := range removed {
			t.repo.rents[rent.ID] = rent
		}
	})
	return nil
}

func (t *memTx) SetUserSpend(_ context.Context, userID int64, spendCents int64, tier int) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	prev, ok := t.repo.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %d", model.ErrNotFound, userID)
	}

	next := prev
	next.TotalSpendCents = spendCents
	next.Tier = tier
	t.repo.users[userID] = next

	t.undo = append(t.undo, func() { t.repo.users[prev.ID] = prev })
	return nil
}

func (t *memTx) DeleteUser(_ context.Context, userID int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	prev, ok := t.repo.users[userID]
	if !ok {
		return fmt.Errorf("%w: user %d", model.ErrNotFound, userID)
	}

	var removed []model.Rent
	for id, rent := range t.repo.rents {
		if rent.UserID == userID {
			removed = append(removed, rent)
			delete(t.repo.rents, id)
		}
	}
	delete(t.repo.users, userID)

	t.undo = append(t.undo, func() {
		t.repo.users[prev.ID] = prev
		for _, rent := range removed {
			t.repo.rents[rent.ID] = rent
		}
	})
	return nil
}

func (t *memTx) UpdateProvider(_ context.Context, p *model.Provider) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	prev, ok := t.repo.providers[p.ID]
	if !ok {
		return fmt.Errorf("%w: provider %d", model.ErrNotFound, p.ID)
	}

	next := prev
	next.Name = p.Name
	next.Address = p.Address
	next.TelephoneNumber = p.TelephoneNumber
	t.repo.providers[p.ID] = next

	t.undo = append(t.undo, func() { t.repo.providers[prev.ID] = prev })
	return nil
}

func (t *memTx) DeleteProvider(_ context.Context, providerID int64) error {
	t.repo.mu.Lock()
	defer t.repo.mu.Unlock()

	prev, ok := t.repo.providers[providerID]
	if !ok {
		return fmt.Errorf("%w: provider %d", model.ErrNotFound, providerID)
	}

	// Автомобиль мог появиться после LockProviderCars, поэтому проверка повторяется под mu.
	for _, rent := range t.repo.rents {
		if rent.Status.IsOpen() && t.repo.cars[rent.CarID].ProviderID == providerID {
			return fmt.Errorf("%w: car %d has unfinished rents", model.ErrConflict, rent.CarID)
		}
	}

	var (
		removedCars  []model.Car
		removedRents []model.Rent
	)
	carIDs := make(map[int64]bool)
	for id, c := range t.repo.cars {
		if c.ProviderID != providerID {
			continue
		}
		carIDs[id] = true
		removedCars = append(removedCars, c)
		delete(t.repo.cars, id)
	}
	for id, rent := range t.repo.rents {
		if carIDs[rent.CarID] {
			removedRents = append(removedRents, rent)
			delete(t.repo.rents, id)
		}
	}
	delete(t.repo.providers, providerID)

	t.undo = append(t.undo, func() {
		t.repo.providers[prev.ID] = prev
		for _, c := range removedCars {
			t.repo.cars[c.ID] = c
		}
		for _, rent := range removedRents {
			t.repo.rents[rent.ID] = rent
		}
	})
	return nil
}
