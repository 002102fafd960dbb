package auth_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/member-directory/internal/auth"
)

var _ = Describe("Permission evaluation", func() {
	var evaluator *auth.Evaluator

	BeforeEach(func() {
		evaluator = auth.NewEvaluator()
	})

	Describe("ParsePermission", func() {
		It("round-trips every declared permission", func() {
			for _, p := range auth.DeclaredPermissions() {
				parsed, ok := auth.ParsePermission(p.String())
				Expect(ok).To(BeTrue())
				Expect(parsed).To(Equal(p))
			}
		})

		It("rejects unknown and unparseable tokens", func() {
			for _, token := range []string{"", "member", "member:", ":create", "member:fly", "invoice:create", "member:create:extra "} {
				_, ok := auth.ParsePermission(token)
				Expect(ok).To(BeFalse(), "token %q should not parse", token)
			}
		})
	})

	Describe("Authorize", func() {
		It("allows a role carrying the required permission", func() {
			roles := []auth.Role{{Name: "EDITOR", Permissions: []string{"member:create", "member:read"}}}
			Expect(evaluator.Authorize(roles, auth.PermMemberCreate)).To(BeTrue())
		})

		It("denies when no role carries the permission", func() {
			roles := []auth.Role{{Name: "VIEWER", Permissions: []string{"member:read"}}}
			Expect(evaluator.Authorize(roles, auth.PermMemberDelete)).To(BeFalse())
		})

		It("treats system:admin as a wildcard over every declared permission", func() {
			roles := []auth.Role{{Name: "ADMIN", Permissions: []string{"system:admin"}}}
			for _, p := range auth.DeclaredPermissions() {
				Expect(evaluator.Authorize(roles, p)).To(BeTrue(), "system:admin should allow %s", p)
			}
		})

		It("skips unknown tokens instead of matching them", func() {
			roles := []auth.Role{{Name: "LEGACY", Permissions: []string{"member:fly", "garbage", "member::read"}}}
			for _, p := range auth.DeclaredPermissions() {
				Expect(evaluator.Authorize(roles, p)).To(BeFalse())
			}
		})

		It("allows when any one of several roles matches", func() {
			roles := []auth.Role{
				{Name: "VIEWER", Permissions: []string{"member:read"}},
				{Name: "JOB_OPERATOR", Permissions: []string{"job:manage"}},
			}
			Expect(evaluator.Authorize(roles, auth.PermJobManage)).To(BeTrue())
			Expect(evaluator.Authorize(roles, auth.PermMemberDelete)).To(BeFalse())
		})

		It("denies a nil principal", func() {
			Expect(evaluator.AuthorizeUser(nil, auth.PermMemberRead)).To(BeFalse())
		})
	})
})
