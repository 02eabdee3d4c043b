// Package guard решает, можно ли отдать страницу при текущей сессии.
package guard

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"manualbase/internal/models"
)

// Policy — наборы путей по пространствам имён. Путь принадлежит набору,
// если совпадает с элементом или лежит под ним ("/admin" покрывает "/admin/x").
type Policy struct {
	Public         []string
	PublicPrefixes []string
	Admin          []string
	User           []string
	LoginPath      string
	UserRoot       string
}

func DefaultPolicy() Policy {
	return Policy{
		Public:         []string{"/", "/login", "/signup"},
		PublicPrefixes: []string{"/static/", "/healthz", "/readyz"},
		Admin:          []string{"/admin"},
		User:           []string{"/user"},
		LoginPath:      "/login",
		UserRoot:       "/user",
	}
}

type Input struct {
	Path  string
	Token string
	User  []byte // сырое сохранённое значение
}

// Rule — номер сработавшего правила, для логов и тестов.
type Rule int

const (
	RulePublic Rule = iota + 1
	RuleNoSession
	RuleAdminOnly
	RuleUserOnly
	RuleAllow
)

func (r Rule) String() string {
	switch r {
	case RulePublic:
		return "public"
	case RuleNoSession:
		return "no-session"
	case RuleAdminOnly:
		return "admin-only"
	case RuleUserOnly:
		return "user-only"
	case RuleAllow:
		return "allow"
	}
	return "unknown"
}

type Decision struct {
	Allow    bool
	Redirect string
	Rule     Rule
}

// Evaluate применяет правила по порядку; первое сработавшее решает.
// Неразбираемый user равен отсутствующему; роль вне admin/user
// решается правилами 3 и 4.
func Evaluate(p Policy, in Input) Decision {
	path := cleanPath(in.Path)
	if p.isPublic(path) {
		return Decision{Allow: true, Rule: RulePublic}
	}
	u, ok := models.DecodeUser(in.User)
	if in.Token == "" || !ok {
		return Decision{Redirect: p.LoginPath, Rule: RuleNoSession}
	}
	if inSet(p.Admin, path) && u.Role != models.RoleAdmin {
		return Decision{Redirect: p.UserRoot, Rule: RuleAdminOnly}
	}
	if inSet(p.User, path) && u.Role != models.RoleUser && u.Role != models.RoleAdmin {
		return Decision{Redirect: p.LoginPath, Rule: RuleUserOnly}
	}
	return Decision{Allow: true, Rule: RuleAllow}
}

func (p Policy) isPublic(path string) bool {
	for _, s := range p.Public {
		if path == s {
			return true
		}
	}
	for _, pre := range p.PublicPrefixes {
		if strings.HasPrefix(path, pre) {
			return true
		}
	}
	return false
}

func inSet(set []string, path string) bool {
	for _, s := range set {
		if path == s || strings.HasPrefix(path, strings.TrimRight(s, "/")+"/") {
			return true
		}
	}
	return false
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
		if p == "" {
			return "/"
		}
	}
	return p
}

// StateReader читает сохранённую пару из запроса.
type StateReader interface {
	Read(r *http.Request) (token string, user []byte)
}

// Middleware пропускает запрос или отвечает 303 на страницу из решения.
func Middleware(p Policy, sr StateReader, log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, user := sr.Read(r)
			d := Evaluate(p, Input{Path: r.URL.Path, Token: token, User: user})
			if d.Allow {
				next.ServeHTTP(w, r)
				return
			}
			log.WithFields(logrus.Fields{
				"path":     r.URL.Path,
				"rule":     d.Rule.String(),
				"redirect": d.Redirect,
			}).Debug("guard: redirect")
			http.Redirect(w, r, d.Redirect, http.StatusSeeOther)
		})
	}
}
