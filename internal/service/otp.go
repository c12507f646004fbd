package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"bankly-api/internal/model"
	"bankly-api/internal/repository"
)

const otpDigits = 6

// maxVerifyCandidates сколько самых новых действующих кодов сверяется за одну попытку
const maxVerifyCandidates = 5

var otpSpace = big.NewInt(1_000_000)

// OTPConfig параметры выпуска одноразовых кодов
type OTPConfig struct {
	TTL         time.Duration
	BcryptCost  int
	IssueLimit   int           // 0 - без ограничения
	IssueWindow  time.Duration // окно для IssueLimit
	VerifyLimit  int           // попыток подтверждения за окно, 0 - без ограничения
	VerifyWindow time.Duration
}

// OTPService выпускает и подтверждает одноразовые коды.
// Код живет только в письме; в базе лежит его bcrypt хеш.
type OTPService struct {
	otps    OTPStore
	cards   CardProvisioner
	sender  MessageSender
	sealer  PayloadSealer
	limiter RateLimiter
	cfg     OTPConfig
	logger  *logrus.Logger
	now     func() time.Time
	random  io.Reader
}

// NewOTPService limiter может быть nil
func NewOTPService(
	otps OTPStore,
	cards CardProvisioner,
	sender MessageSender,
	sealer PayloadSealer,
	limiter RateLimiter,
	cfg OTPConfig,
	logger *logrus.Logger,
) *OTPService {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &OTPService{
		otps:    otps,
		cards:   cards,
		sender:  sender,
		sealer:  sealer,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		random:  rand.Reader,
	}
}

// Issue выпускает код для (userID, email, purpose) и отправляет его письмом.
// Ранее выпущенные коды остаются действительными до истечения срока.
func (s *OTPService) Issue(ctx context.Context, userID uuid.UUID, req model.SendOTPRequest) (*model.SendOTPResult, error) {
	email := strings.TrimSpace(req.Email)
	log := s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"purpose": req.Purpose,
	})

	if !model.IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !req.Purpose.Known() {
		return nil, ErrInvalidPurpose
	}

	var payload *model.OTPPayload
	switch {
	case req.Purpose.RequiresPayload() && req.CardDetails == nil:
		return nil, withMessage(ErrInvalidCardDetails, "Card details are required")
	case req.Purpose.RequiresPayload():
		pending, err := s.cards.Prepare(ctx, userID, *req.CardDetails)
		if err != nil {
			return nil, err
		}
		payload = &model.OTPPayload{Card: pending}
	case req.CardDetails != nil:
		return nil, withMessage(ErrInvalidPurpose, fmt.Sprintf("Purpose %s does not accept card details", req.Purpose))
	}

	if err := s.checkRate(ctx, "otp:", userID, req.Purpose, s.cfg.IssueLimit, s.cfg.IssueWindow, ErrOTPRateLimited); err != nil {
		log.WithError(err).Warn("Превышен лимит выпуска OTP")
		return nil, err
	}

	code, err := generateCode(s.random)
	if err != nil {
		log.WithError(err).Error("Ошибка генерации кода")
		return nil, wrap(ErrInternal, err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.BcryptCost)
	if err != nil {
		log.WithError(err).Error("Ошибка хеширования кода")
		return nil, wrap(ErrInternal, err)
	}

	metadata, err := s.sealPayload(payload)
	if err != nil {
		log.WithError(err).Error("Ошибка запечатывания данных OTP")
		return nil, wrap(ErrInternal, err)
	}

	now := s.now()
	record := &model.OTPVerification{
		ID:        uuid.New(),
		UserID:    userID,
		Email:     email,
		Purpose:   req.Purpose,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(s.cfg.TTL),
		Metadata:  metadata,
		CreatedAt: now,
	}
	if err := s.otps.Create(ctx, record); err != nil {
		log.WithError(err).Error("Ошибка сохранения OTP")
		return nil, &Error{Kind: KindPersistence, Code: ErrPersistence.Code, Message: "Failed to store verification code", Err: err}
	}

	body, err := renderOTPEmail(code, int(s.cfg.TTL.Round(time.Minute)/time.Minute))
	if err != nil {
		return nil, wrap(ErrInternal, err)
	}
	if err := s.sender.SendMessage(ctx, email, otpSubject, body); err != nil {
		log.WithError(err).Error("Ошибка отправки OTP")
		return nil, wrap(ErrOTPDispatch, err)
	}

	log.WithField("otp_id", record.ID).Info("OTP выпущен")
	return &model.SendOTPResult{
		Success:   true,
		Message:   "OTP sent successfully",
		ExpiresAt: record.ExpiresAt,
	}, nil
}

// Verify подтверждает код. Из нескольких действующих кодов выбирается самый новый
// совпадающий; остальные не трогаются. Код гасится до выполнения отложенного действия,
// поэтому ошибка добавления карты его не восстанавливает.
func (s *OTPService) Verify(ctx context.Context, userID uuid.UUID, req model.VerifyOTPRequest) (*model.VerifyOTPResult, error) {
	email := strings.TrimSpace(req.Email)
	code := strings.TrimSpace(req.OTPCode)
	log := s.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"purpose": req.Purpose,
	})

	if email == "" || !req.Purpose.Known() || len(code) != otpDigits || !model.IsDigits(code) {
		return nil, ErrOTPInvalidOrExpired
	}

	if err := s.checkRate(ctx, "otp_verify:", userID, req.Purpose, s.cfg.VerifyLimit, s.cfg.VerifyWindow, ErrOTPVerifyRateLimited); err != nil {
		log.Warn("Превышен лимит попыток подтверждения OTP")
		return nil, err
	}

	candidates, err := s.otps.FindActive(ctx, userID, email, req.Purpose, s.now())
	if err != nil {
		log.WithError(err).Error("Ошибка поиска OTP")
		return nil, wrap(ErrInternal, err)
	}
	if len(candidates) > maxVerifyCandidates {
		candidates = candidates[:maxVerifyCandidates]
	}

	var match *model.OTPVerification
	for i := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(candidates[i].CodeHash), []byte(code)) == nil {
			match = &candidates[i]
			break
		}
	}
	if match == nil {
		log.Warn("Неверный или просроченный OTP")
		return nil, ErrOTPInvalidOrExpired
	}

	if err := s.otps.MarkVerified(ctx, match.ID); err != nil {
		if errors.Is(err, repository.ErrAlreadyVerified) {
			log.WithField("otp_id", match.ID).Warn("OTP уже использован")
			return nil, ErrOTPAlreadyConsumed
		}
		log.WithError(err).Error("Ошибка подтверждения OTP")
		return nil, wrap(ErrInternal, err)
	}

	result := &model.VerifyOTPResult{Success: true, Message: "OTP verified successfully"}
	if !match.Purpose.RequiresPayload() {
		log.WithField("otp_id", match.ID).Info("OTP подтвержден")
		return result, nil
	}

	// код уже погашен: действие выполняется даже при отмене запроса
	card, err := s.completeAddCard(context.WithoutCancel(ctx), userID, match)
	if err != nil {
		log.WithError(err).WithField("otp_id", match.ID).Error("Ошибка добавления карты после подтверждения OTP")
		return nil, wrap(ErrCardProvisioning, err)
	}

	result.Message = "Card added successfully"
	result.Card = card
	return result, nil
}

// PurgeExpired удаляет просроченные коды. Корректность от нее не зависит.
func (s *OTPService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.otps.DeleteExpired(ctx, s.now())
	if err != nil {
		s.logger.WithError(err).Error("Ошибка очистки просроченных OTP")
		return 0, err
	}
	return n, nil
}

func (s *OTPService) completeAddCard(ctx context.Context, userID uuid.UUID, otp *model.OTPVerification) (*model.Card, error) {
	if otp.Metadata == nil {
		return nil, errors.New("otp has no pending card")
	}
	plain, err := s.sealer.Open(*otp.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to open otp payload: %w", err)
	}

	var payload model.OTPPayload
	if err := json.Unmarshal(plain, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode otp payload: %w", err)
	}
	if payload.Card == nil {
		return nil, errors.New("otp payload has no card")
	}
	return s.cards.Provision(ctx, userID, *payload.Card)
}

// checkRate считает попытку в окне (prefix+purpose, userID).
// При недоступности лимитера попытка пропускается.
func (s *OTPService) checkRate(
	ctx context.Context,
	prefix string,
	userID uuid.UUID,
	purpose model.OTPPurpose,
	limit int,
	window time.Duration,
	sentinel *Error,
) error {
	if s.limiter == nil || limit <= 0 {
		return nil
	}
	allowed, retryAfter, err := s.limiter.Allow(ctx, prefix+string(purpose), userID.String(), limit, window)
	if err != nil {
		s.logger.WithError(err).WithField("scope", prefix+string(purpose)).Warn("Лимитер недоступен")
		return nil
	}
	if !allowed {
		e := wrap(sentinel, nil)
		e.RetryAfter = retryAfter
		return e
	}
	return nil
}

func (s *OTPService) sealPayload(payload *model.OTPPayload) (*string, error) {
	if payload == nil {
		return nil, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode otp payload: %w", err)
	}
	sealed, err := s.sealer.Seal(raw)
	if err != nil {
		return nil, err
	}
	return &sealed, nil
}

// generateCode равномерно распределенный код 000000-999999
func generateCode(r io.Reader) (string, error) {
	n, err := rand.Int(r, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}
