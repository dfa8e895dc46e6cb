// Package receipt issues numbered receipts for completed payments and renders them.
package receipt

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/risiti/core"
	"github.com/trezcool/risiti/core/academicyear"
	"github.com/trezcool/risiti/core/payment"
	"github.com/trezcool/risiti/core/setting"
	"github.com/trezcool/risiti/core/student"
	"github.com/trezcool/risiti/core/user"
)

var (
	// errors
	ErrNotFound            = errors.New("receipt not found")
	ErrNumberTaken         = errors.New("receipt number already allocated")
	ErrAlreadyIssued       = errors.New("payment already has a receipt")
	ErrPaymentNotCompleted = errors.New("only completed payments can be receipted")
	ErrAllocationExhausted = errors.New("could not allocate a receipt number")
	ErrNoRecipient         = errors.New("no email address to send the receipt to")
)

type Repository interface {
	// NextSequence returns one more than the highest sequence of the receipts of the academic
	// year or numbered within scope (see NumberScope), 1 when there are none.
	NextSequence(ctx context.Context, yearID, scope string, exec ...core.DBExecutor) (int, error)
	// CreateReceipt returns ErrNumberTaken when the number or the (year, sequence) pair is used
	// and ErrAlreadyIssued when the payment already has a receipt.
	CreateReceipt(ctx context.Context, rcpt Receipt, exec ...core.DBExecutor) (Receipt, error)
	GetReceipt(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (Receipt, error)
	QueryReceipts(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Receipt, error)
	MarkEmailSent(ctx context.Context, id string, at time.Time, exec ...core.DBExecutor) (Receipt, error)
}

// Renderer turns a Document into files.
type Renderer interface {
	HTML(doc Document) ([]byte, error)
	PDF(doc Document) ([]byte, error)
}

type Service struct {
	tx       core.Transactor
	repo     Repository
	payments payment.Repository
	students student.Repository
	years    academicyear.Repository
	users    user.Repository
	settings *setting.Service
	renderer Renderer
	mailSvc  core.EmailService
	logger   core.Logger
	conf     core.ReceiptConfig
	nowFunc  func() time.Time // mockable
}

func NewService(
	tx core.Transactor,
	repo Repository,
	payments payment.Repository,
	students student.Repository,
	years academicyear.Repository,
	users user.Repository,
	settings *setting.Service,
	renderer Renderer,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	rconf := conf.Receipt
	if rconf.NumberWidth <= 0 {
		rconf.NumberWidth = DefaultNumberWidth
	}
	if rconf.MaxAllocAttempts <= 0 {
		rconf.MaxAllocAttempts = DefaultMaxAllocAttempts
	}
	return &Service{
		tx:       tx,
		repo:     repo,
		payments: payments,
		students: students,
		years:    years,
		users:    users,
		settings: settings,
		renderer: renderer,
		mailSvc:  mailSvc,
		logger:   logger,
		conf:     rconf,
		nowFunc:  time.Now,
	}
}

// Issue returns the receipt of a completed payment, creating it on first call.
// A number taken by a concurrent issuer is retried with a fresh allocation.
func (svc *Service) Issue(ctx context.Context, paymentID, signerID string) (Receipt, error) {
	pmt, err := svc.payments.GetPayment(ctx, payment.GetFilter{ID: paymentID})
	if err != nil {
		return Receipt{}, err
	}

	existing, err := svc.repo.GetReceipt(ctx, GetFilter{PaymentID: pmt.ID})
	switch errors.Cause(err) {
	case nil:
		return existing, nil
	case ErrNotFound:
	default:
		return Receipt{}, errors.Wrap(err, "finding payment receipt")
	}

	if !pmt.IsCompleted() {
		return Receipt{}, core.NewValidationError(ErrPaymentNotCompleted, core.FieldError{
			Field: "payment_id",
			Error: ErrPaymentNotCompleted.Error(),
		})
	}

	_, rcpt, err := svc.allocate(ctx, pmt, signerID, false)
	if errors.Cause(err) == ErrAlreadyIssued {
		// issued concurrently for the same payment
		return svc.repo.GetReceipt(ctx, GetFilter{PaymentID: pmt.ID})
	}
	return rcpt, err
}

// RecordAndIssue saves a new completed payment and its receipt in the same transaction:
// when no receipt can be issued, the payment is not saved either.
func (svc *Service) RecordAndIssue(ctx context.Context, pmt payment.Payment, signerID string) (payment.Payment, Receipt, error) {
	if !pmt.IsCompleted() {
		return payment.Payment{}, Receipt{}, core.NewValidationError(ErrPaymentNotCompleted, core.FieldError{
			Field: "status",
			Error: ErrPaymentNotCompleted.Error(),
		})
	}
	return svc.allocate(ctx, pmt, signerID, true)
}

// allocate creates the receipt of pmt, creating pmt first in the same transaction when record is set.
func (svc *Service) allocate(ctx context.Context, pmt payment.Payment, signerID string, record bool) (payment.Payment, Receipt, error) {
	year, err := svc.years.GetYear(ctx, pmt.AcademicYearID)
	if err != nil {
		return payment.Payment{}, Receipt{}, errors.Wrap(err, "finding academic year")
	}
	profile, err := svc.settings.Profile(ctx)
	if err != nil {
		return payment.Payment{}, Receipt{}, errors.Wrap(err, "loading profile")
	}
	scope := NumberScope(profile.ReceiptPrefix, year.Tag())

	for attempt := 1; attempt <= svc.conf.MaxAllocAttempts; attempt++ {
		var (
			saved = pmt
			rcpt  Receipt
		)
		err = svc.tx.WithinTx(ctx, func(exec core.DBExecutor) error {
			var err error
			if record {
				if saved, err = svc.payments.CreatePayment(ctx, pmt, exec); err != nil {
					return errors.Wrap(err, "creating payment")
				}
			}
			seq, err := svc.repo.NextSequence(ctx, year.ID, scope, exec)
			if err != nil {
				return errors.Wrap(err, "allocating sequence")
			}
			rcpt, err = svc.repo.CreateReceipt(ctx, Receipt{
				Number:         FormatNumber(profile.ReceiptPrefix, year.Tag(), seq, svc.conf.NumberWidth),
				Sequence:       seq,
				PaymentID:      saved.ID,
				StudentID:      saved.StudentID,
				AcademicYearID: saved.AcademicYearID,
				Amount:         saved.Amount,
				Discount:       saved.Discount,
				Total:          saved.Total(),
				GeneratedAt:    svc.nowFunc().UTC(),
				SignedBy:       signerID,
			}, exec)
			return err
		})

		switch errors.Cause(err) {
		case nil:
			return saved, rcpt, nil
		case ErrNumberTaken:
			continue
		case ErrAlreadyIssued:
			return payment.Payment{}, Receipt{}, err
		default:
			return payment.Payment{}, Receipt{}, errors.Wrap(err, "creating receipt")
		}
	}
	return payment.Payment{}, Receipt{}, errors.Wrapf(ErrAllocationExhausted, "%d attempts for year %s", svc.conf.MaxAllocAttempts, year.Name)
}

func (svc *Service) Get(ctx context.Context, id string) (Receipt, error) {
	return svc.repo.GetReceipt(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByPayment(ctx context.Context, paymentID string) (Receipt, error) {
	return svc.repo.GetReceipt(ctx, GetFilter{PaymentID: paymentID})
}

func (svc *Service) GetByNumber(ctx context.Context, number string) (Receipt, error) {
	return svc.repo.GetReceipt(ctx, GetFilter{Number: core.CleanString(number)})
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Receipt, error) {
	return svc.repo.QueryReceipts(ctx, filter, ordering)
}

func (svc *Service) MarkEmailSent(ctx context.Context, id string) (Receipt, error) {
	return svc.repo.MarkEmailSent(ctx, id, svc.nowFunc().UTC())
}

// Details loads the receipt with the records it was issued from.
func (svc *Service) Details(ctx context.Context, id string) (Details, error) {
	rcpt, err := svc.Get(ctx, id)
	if err != nil {
		return Details{}, err
	}
	d := Details{Receipt: rcpt}

	if d.Payment, err = svc.payments.GetPayment(ctx, payment.GetFilter{ID: rcpt.PaymentID}); err != nil {
		return Details{}, errors.Wrap(err, "finding payment")
	}
	if d.Student, err = svc.students.GetStudent(ctx, rcpt.StudentID); err != nil {
		return Details{}, errors.Wrap(err, "finding student")
	}
	if d.AcademicYear, err = svc.years.GetYear(ctx, rcpt.AcademicYearID); err != nil {
		return Details{}, errors.Wrap(err, "finding academic year")
	}

	enrs, err := svc.students.QueryEnrollments(ctx, student.EnrollmentFilter{StudentID: rcpt.StudentID, AcademicYearID: rcpt.AcademicYearID})
	if err != nil {
		return Details{}, errors.Wrap(err, "querying enrollments")
	}
	if len(enrs) > 0 {
		d.Enrollment = &enrs[0]
	}

	if rcpt.SignedBy != "" {
		signer, err := svc.users.GetUser(ctx, user.GetFilter{ID: rcpt.SignedBy})
		if err != nil && errors.Cause(err) != user.ErrNotFound {
			return Details{}, errors.Wrap(err, "finding signer")
		}
		d.Signer = signer
	}
	return d, nil
}

// Document lays out the receipt with the current institution profile.
func (svc *Service) Document(ctx context.Context, id string) (Document, error) {
	d, err := svc.Details(ctx, id)
	if err != nil {
		return Document{}, err
	}
	profile, err := svc.settings.Profile(ctx)
	if err != nil {
		return Document{}, errors.Wrap(err, "loading profile")
	}
	return NewDocument(d, profile), nil
}

func (svc *Service) HTML(ctx context.Context, id string) ([]byte, error) {
	doc, err := svc.Document(ctx, id)
	if err != nil {
		return nil, err
	}
	html, err := svc.renderer.HTML(doc)
	return html, errors.Wrap(err, "rendering html")
}

// PDF returns the receipt as a PDF file along with its file name.
func (svc *Service) PDF(ctx context.Context, id string) ([]byte, string, error) {
	doc, err := svc.Document(ctx, id)
	if err != nil {
		return nil, "", err
	}
	pdf, err := svc.renderer.PDF(doc)
	if err != nil {
		return nil, "", errors.Wrap(err, "rendering pdf")
	}
	return pdf, doc.Number + ".pdf", nil
}

// SendEmail mails the receipt, PDF attached, and flags it as sent.
func (svc *Service) SendEmail(ctx context.Context, id string, data SendEmail) (Receipt, error) {
	d, err := svc.Details(ctx, id)
	if err != nil {
		return Receipt{}, err
	}
	profile, err := svc.settings.Profile(ctx)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "loading profile")
	}

	name, to := core.CleanString(data.Name), core.CleanString(data.To, true /* lower */)
	if to == "" {
		name, to = d.Student.ContactEmail()
	}
	if to == "" {
		return Receipt{}, core.NewValidationError(ErrNoRecipient, core.FieldError{Field: "to", Error: ErrNoRecipient.Error()})
	}

	doc := NewDocument(d, profile)
	pdf, err := svc.renderer.PDF(doc)
	if err != nil {
		return Receipt{}, errors.Wrap(err, "rendering pdf")
	}

	recipientName := name
	if recipientName == "" {
		recipientName = "Sir/Madam"
	}
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: name, Address: to}},
		Subject:      fmt.Sprintf("Receipt %s", doc.Number),
		TemplateName: "receipt",
		TemplateData: map[string]string{
			"RecipientName": recipientName,
			"Number":        doc.Number,
			"Institution":   doc.Institution.Name,
			"Date":          doc.Date,
			"Currency":      doc.Currency,
			"Total":         doc.Total,
			"StudentName":   doc.Student.Name,
			"Body":          doc.Text(),
		},
	}
	if err = msg.Attach(bytes.NewReader(pdf), doc.Number+".pdf", "application/pdf"); err != nil {
		return Receipt{}, errors.Wrap(err, "attaching pdf")
	}
	if err = svc.mailSvc.Send(ctx, msg); err != nil {
		return Receipt{}, errors.Wrap(err, "sending receipt email")
	}

	// the email is sent: it is reported as such even when the flag cannot be saved
	sentAt := svc.nowFunc().UTC()
	rcpt, err := svc.repo.MarkEmailSent(ctx, id, sentAt)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("flagging receipt %s as emailed: %v", d.Receipt.Number, err), err)
		rcpt = d.Receipt
		rcpt.EmailSent, rcpt.EmailSentAt = true, sentAt
	}
	return rcpt, nil
}
