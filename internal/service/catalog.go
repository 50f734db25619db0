package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/store"
	"laundrypos/backend/internal/xid"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9-]{1,31}$`)

func (s *Service) CreateBranch(ctx context.Context, req domain.BranchCreateRequest) (domain.Branch, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Branch{}, err
	}

	code := strings.ToUpper(strings.TrimSpace(req.Code))
	name := strings.TrimSpace(req.Name)
	if !codePattern.MatchString(code) || name == "" {
		return domain.Branch{}, fmt.Errorf("%w: branch code and name are required", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateBranch(ctx, domain.Branch{
		ID:        strings.ToLower(code) + "-branch",
		Code:      code,
		Name:      name,
		Phone:     strings.TrimSpace(req.Phone),
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Branch{}, err
	}
	s.logAudit(ctx, created.ID, "branch_create", "branch", created.ID, "code="+created.Code)
	return *created, nil
}

func (s *Service) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	return s.repo.ListBranches(ctx)
}

func (s *Service) ListServices(ctx context.Context, includeInactive bool) ([]domain.LaundryService, error) {
	return s.repo.ListServices(ctx, includeInactive)
}

func (s *Service) CreateService(ctx context.Context, req domain.ServiceCreateRequest) (domain.LaundryService, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.LaundryService{}, err
	}

	svc := domain.LaundryService{
		Code:      strings.ToUpper(strings.TrimSpace(req.Code)),
		Name:      strings.TrimSpace(req.Name),
		Category:  strings.ToLower(strings.TrimSpace(req.Category)),
		Unit:      defaultString(strings.ToLower(strings.TrimSpace(req.Unit)), "piece"),
		UnitPrice: domain.RoundMoney(req.UnitPrice),
		Active:    true,
	}
	if !codePattern.MatchString(svc.Code) || svc.Name == "" || svc.Category == "" {
		return domain.LaundryService{}, fmt.Errorf("%w: service code, name and category are required", store.ErrInvalidInput)
	}
	if !svc.UnitPrice.IsPositive() {
		return domain.LaundryService{}, fmt.Errorf("%w: unit price must be greater than 0", store.ErrInvalidInput)
	}
	if domain.ExceedsMoneyBound(svc.UnitPrice) {
		return domain.LaundryService{}, fmt.Errorf("%w: unit price must not exceed %s", store.ErrInvalidInput, domain.FormatTSh(domain.MaxMoney))
	}

	created, err := s.repo.CreateService(ctx, svc)
	if err != nil {
		return domain.LaundryService{}, err
	}
	s.logAudit(ctx, "", "service_create", "service", created.Code, fmt.Sprintf("name=%s,price=%s", created.Name, created.UnitPrice.StringFixed(2)))
	return *created, nil
}

func (s *Service) UpdateService(ctx context.Context, code string, req domain.ServiceUpdateRequest) (domain.LaundryService, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.LaundryService{}, err
	}

	existing, err := s.repo.GetService(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return domain.LaundryService{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.LaundryService{}, fmt.Errorf("%w: name cannot be empty", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.ToLower(strings.TrimSpace(*req.Category))
		if category == "" {
			return domain.LaundryService{}, fmt.Errorf("%w: category cannot be empty", store.ErrInvalidInput)
		}
		updated.Category = category
	}
	if req.Unit != nil {
		updated.Unit = defaultString(strings.ToLower(strings.TrimSpace(*req.Unit)), "piece")
	}
	if req.UnitPrice != nil {
		price := domain.RoundMoney(*req.UnitPrice)
		if !price.IsPositive() {
			return domain.LaundryService{}, fmt.Errorf("%w: unit price must be greater than 0", store.ErrInvalidInput)
		}
		if domain.ExceedsMoneyBound(price) {
			return domain.LaundryService{}, fmt.Errorf("%w: unit price must not exceed %s", store.ErrInvalidInput, domain.FormatTSh(domain.MaxMoney))
		}
		updated.UnitPrice = price
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateService(ctx, updated)
	if err != nil {
		return domain.LaundryService{}, err
	}
	detail := fmt.Sprintf("price=%s->%s,active=%t", existing.UnitPrice.StringFixed(2), saved.UnitPrice.StringFixed(2), saved.Active)
	s.logAudit(ctx, "", "service_update", "service", saved.Code, detail)
	return *saved, nil
}

func normalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(phone) {
		if r >= '0' && r <= '9' || (r == '+' && i == 0) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func normalizeAccountType(accountType string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(accountType)) {
	case "", domain.AccountTypeWalkIn:
		return domain.AccountTypeWalkIn, nil
	case domain.AccountTypeCorporate:
		return domain.AccountTypeCorporate, nil
	default:
		return "", fmt.Errorf("%w: account_type must be walk_in or corporate", store.ErrInvalidInput)
	}
}

func (s *Service) withTier(customer domain.Customer) domain.Customer {
	customer.LoyaltyTier = s.pricing.LoyaltyTier(customer.LoyaltyPoints).Name
	return customer
}

func (s *Service) CreateCustomer(ctx context.Context, req domain.CustomerCreateRequest) (domain.Customer, error) {
	accountType, err := normalizeAccountType(req.AccountType)
	if err != nil {
		return domain.Customer{}, err
	}
	customer := domain.Customer{
		ID:          xid.New("cust"),
		Name:        strings.TrimSpace(req.Name),
		Phone:       normalizePhone(req.Phone),
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Address:     strings.TrimSpace(req.Address),
		AccountType: accountType,
		CreatedAt:   s.now(),
	}
	if customer.Name == "" || len(customer.Phone) < 7 {
		return domain.Customer{}, fmt.Errorf("%w: customer name and a valid phone are required", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateCustomer(ctx, customer)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "", "customer_create", "customer", created.ID, "phone="+created.Phone)
	return s.withTier(*created), nil
}

func (s *Service) GetCustomer(ctx context.Context, id string) (domain.Customer, error) {
	customer, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}
	return s.withTier(*customer), nil
}

func (s *Service) SearchCustomers(ctx context.Context, query string, limit int) ([]domain.Customer, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}
	query = strings.TrimSpace(query)
	if digits := normalizePhone(query); digits != "" && len(digits) == len(query) {
		query = digits
	}
	customers, err := s.repo.SearchCustomers(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	for i := range customers {
		customers[i] = s.withTier(customers[i])
	}
	return customers, nil
}

func (s *Service) UpdateCustomer(ctx context.Context, id string, req domain.CustomerUpdateRequest) (domain.Customer, error) {
	existing, err := s.repo.GetCustomer(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Customer{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Customer{}, fmt.Errorf("%w: name cannot be empty", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.Phone != nil {
		phone := normalizePhone(*req.Phone)
		if len(phone) < 7 {
			return domain.Customer{}, fmt.Errorf("%w: invalid phone", store.ErrInvalidInput)
		}
		updated.Phone = phone
	}
	if req.Email != nil {
		updated.Email = strings.ToLower(strings.TrimSpace(*req.Email))
	}
	if req.Address != nil {
		updated.Address = strings.TrimSpace(*req.Address)
	}
	if req.AccountType != nil {
		accountType, err := normalizeAccountType(*req.AccountType)
		if err != nil {
			return domain.Customer{}, err
		}
		updated.AccountType = accountType
	}

	saved, err := s.repo.UpdateCustomer(ctx, updated)
	if err != nil {
		return domain.Customer{}, err
	}
	s.logAudit(ctx, "", "customer_update", "customer", saved.ID, "phone="+saved.Phone)
	return s.withTier(*saved), nil
}
