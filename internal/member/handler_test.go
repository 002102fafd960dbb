package member_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	internal "github.com/frahmantamala/member-directory/internal"
	"github.com/frahmantamala/member-directory/internal/auth"
	"github.com/frahmantamala/member-directory/internal/member"
)

var _ = Describe("MemberHandler", func() {
	var (
		mockRepo *mockMemberRepository
		handler  *member.Handler
		viewer   *auth.User
	)

	BeforeEach(func() {
		mockRepo = newMockMemberRepository()
		testLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service := member.NewService(mockRepo, auth.NewEvaluator(), &capturingRecorder{}, testLogger)
		handler = member.NewHandler(service)

		viewer = userWithPermissions("viewer1", "member:read")
	})

	post := func(actor *auth.User, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/members", bytes.NewBufferString(body))
		req = req.WithContext(auth.ContextWithUser(req.Context(), actor))
		rec := httptest.NewRecorder()
		handler.Register(rec, req)
		return rec
	}

	errCodeFromBody := func(rec *httptest.ResponseRecorder) internal.ErrorCode {
		var resp struct {
			Error struct {
				Code internal.ErrorCode `json:"code"`
			} `json:"error"`
		}
		Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
		return resp.Error.Code
	}

	It("reports validation failure over the wire when the caller also lacks permission", func() {
		rec := post(viewer, `{"name":"Jane123","email":"jane@example.com","phone":"9123456780"}`)

		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(errCodeFromBody(rec)).To(Equal(internal.ErrCodeValidationFailed))
	})

	It("reports the conflict over the wire when the email is taken and the caller lacks permission", func() {
		editor := userWithPermissions("editor1", "member:create")
		first := post(editor, `{"name":"Jane","email":"taken@example.com","phone":"9123456780"}`)
		Expect(first.Code).To(Equal(http.StatusCreated))

		rec := post(viewer, `{"name":"Janet","email":"taken@example.com","phone":"9123456781"}`)

		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(errCodeFromBody(rec)).To(Equal(internal.ErrCodeDuplicateValue))
	})

	It("reports forbidden only when the request is otherwise acceptable", func() {
		rec := post(viewer, `{"name":"Jane","email":"jane@example.com","phone":"9123456780"}`)

		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(errCodeFromBody(rec)).To(Equal(internal.ErrCodeInsufficientPermission))
	})
})
