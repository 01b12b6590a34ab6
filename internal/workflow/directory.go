package workflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/config"
)

// DirectorySubject identifies the account a directory action applies to.
type DirectorySubject struct {
	Email    string
	Username string
}

// Directory performs identity-system actions requested by ldap_query steps.
type Directory interface {
	ResetPassword(ctx context.Context, subject DirectorySubject) error
	UnlockAccount(ctx context.Context, subject DirectorySubject) error
}

// SimulatedDirectory accepts every request and only logs it.
type SimulatedDirectory struct {
	Logger *zap.Logger
}

func (d SimulatedDirectory) ResetPassword(_ context.Context, subject DirectorySubject) error {
	d.log("simulated password reset", subject)
	return nil
}

func (d SimulatedDirectory) UnlockAccount(_ context.Context, subject DirectorySubject) error {
	d.log("simulated account unlock", subject)
	return nil
}

func (d SimulatedDirectory) log(msg string, subject DirectorySubject) {
	if d.Logger == nil {
		return
	}
	d.Logger.Info(msg, zap.String("email", subject.Email), zap.String("username", subject.Username))
}

// ErrSubjectNotFound is returned when the directory search does not yield exactly one entry.
var ErrSubjectNotFound = errors.New("directory: subject not found")

// LDAPDirectory applies password resets and unlocks against an LDAP server.
type LDAPDirectory struct {
	cfg     config.LDAPConfig
	timeout time.Duration
}

// NewLDAPDirectory builds the LDAP adapter.
func NewLDAPDirectory(cfg config.LDAPConfig) *LDAPDirectory {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LDAPDirectory{cfg: cfg, timeout: timeout}
}

// ResetPassword flags the account so the user must choose a new password at next login.
func (d *LDAPDirectory) ResetPassword(ctx context.Context, subject DirectorySubject) error {
	return d.withConn(ctx, func(conn *ldap.Conn) error {
		dn, err := d.findDN(conn, subject)
		if err != nil {
			return err
		}
		req := ldap.NewModifyRequest(dn, nil)
		req.Replace(d.cfg.ResetAttribute, []string{"TRUE"})
		if err := conn.Modify(req); err != nil {
			return fmt.Errorf("ldap reset %s: %w", dn, err)
		}
		return nil
	})
}

// UnlockAccount clears the lockout attribute. An account that is not locked is left as is.
func (d *LDAPDirectory) UnlockAccount(ctx context.Context, subject DirectorySubject) error {
	return d.withConn(ctx, func(conn *ldap.Conn) error {
		dn, err := d.findDN(conn, subject)
		if err != nil {
			return err
		}
		req := ldap.NewModifyRequest(dn, nil)
		req.Delete(d.cfg.UnlockAttribute, nil)
		if err := conn.Modify(req); err != nil {
			if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchAttribute) {
				return nil
			}
			return fmt.Errorf("ldap unlock %s: %w", dn, err)
		}
		return nil
	})
}

func (d *LDAPDirectory) withConn(ctx context.Context, fn func(conn *ldap.Conn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn, err := ldap.DialURL(d.cfg.URL, ldap.DialWithDialer(&net.Dialer{Timeout: d.timeout}))
	if err != nil {
		return fmt.Errorf("ldap dial: %w", err)
	}
	defer conn.Close()
	conn.SetTimeout(d.timeout)

	if d.cfg.BindDN != "" {
		if err := conn.Bind(d.cfg.BindDN, d.cfg.BindPassword); err != nil {
			return fmt.Errorf("ldap bind: %w", err)
		}
	}
	return fn(conn)
}

func (d *LDAPDirectory) findDN(conn *ldap.Conn, subject DirectorySubject) (string, error) {
	value := subject.Email
	if value == "" {
		value = subject.Username
	}
	if value == "" {
		return "", ErrSubjectNotFound
	}

	req := ldap.NewSearchRequest(
		d.cfg.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		2,
		int(d.timeout.Seconds()),
		false,
		userFilter(d.cfg.UserFilter, value),
		[]string{"dn"},
		nil,
	)
	res, err := conn.Search(req)
	if err != nil {
		return "", fmt.Errorf("ldap search: %w", err)
	}
	if len(res.Entries) != 1 {
		return "", ErrSubjectNotFound
	}
	return res.Entries[0].DN, nil
}

func userFilter(pattern, value string) string {
	return fmt.Sprintf(pattern, ldap.EscapeFilter(value))
}
