package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sccms-api/internal/middleware"
	"github.com/noah-isme/sccms-api/internal/models"
)

var (
	everyone  = []models.UserRole{models.RoleAdmin, models.RoleManager, models.RoleSecretary, models.RoleStaff}
	office    = []models.UserRole{models.RoleAdmin, models.RoleManager, models.RoleSecretary}
	managers  = []models.UserRole{models.RoleAdmin, models.RoleManager}
	field     = []models.UserRole{models.RoleAdmin, models.RoleManager, models.RoleStaff}
	adminOnly = []models.UserRole{models.RoleAdmin}
)

// Handlers groups every HTTP handler mounted by RegisterRoutes.
type Handlers struct {
	Auth          *AuthHandler
	Users         *UserHandler
	Courses       *CourseHandler
	Students      *PersonHandler
	Volunteers    *PersonHandler
	Applications  *ApplicationHandler
	Placement     *PlacementHandler
	Rooms         *RoomHandler
	NightShifts   *NightShiftHandler
	Reports       *ReportHandler
	Notifications *NotificationHandler
	Exports       *ExportHandler
	Workflow      *WorkflowHandler
}

// RegisterRoutes mounts the API under r. Everything except login, refresh
// and signed downloads requires a valid access token.
func RegisterRoutes(r gin.IRouter, h Handlers, tokens middleware.TokenValidator) {
	public := r.Group("")
	public.POST("/auth/login", h.Auth.Login)
	public.POST("/auth/refresh", h.Auth.Refresh)
	public.GET("/export/:token", h.Exports.Download)

	secured := r.Group("")
	secured.Use(middleware.JWT(tokens))
	registerSecured(secured, h)
}

func registerSecured(r *gin.RouterGroup, h Handlers) {
	roles := middleware.RequireRoles

	r.POST("/auth/logout", h.Auth.Logout)
	r.POST("/auth/change-password", h.Auth.ChangePassword)
	r.GET("/auth/me", h.Auth.Me)
	r.GET("/workflows/:entity/next", h.Workflow.Next)

	users := r.Group("/users")
	users.GET("", roles(adminOnly...), h.Users.List)
	users.POST("", roles(adminOnly...), h.Users.Create)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), middleware.Self), h.Users.Get)
	users.PUT("/:id", roles(adminOnly...), h.Users.Update)
	users.DELETE("/:id", roles(adminOnly...), h.Users.Delete)

	courses := r.Group("/courses")
	courses.GET("", roles(everyone...), h.Courses.List)
	courses.POST("", roles(managers...), h.Courses.Create)
	courses.GET("/:id", roles(everyone...), h.Courses.Get)
	courses.PUT("/:id", roles(managers...), h.Courses.Update)
	courses.PATCH("/:id/status", roles(managers...), h.Courses.ChangeStatus)
	courses.DELETE("/:id", roles(managers...), h.Courses.Delete)
	courses.GET("/:id/dashboard", roles(office...), h.Courses.Dashboard)

	courses.GET("/:id/applications", roles(office...), h.Applications.List)
	courses.POST("/:id/applications/auto-approve", roles(managers...), h.Applications.AutoApprove)

	courses.GET("/:id/teams", roles(everyone...), h.Placement.ListTeams)
	courses.POST("/:id/teams", roles(office...), h.Placement.CreateTeam)
	courses.POST("/:id/teams/auto-assign", roles(office...), h.Placement.AutoAssignTeams)
	courses.GET("/:id/groups", roles(everyone...), h.Placement.ListGroups)
	courses.POST("/:id/groups", roles(office...), h.Placement.CreateGroup)
	courses.POST("/:id/groups/auto-assign", roles(office...), h.Placement.AutoAssignGroups)

	courses.GET("/:id/rooms", roles(everyone...), h.Rooms.List)
	courses.POST("/:id/rooms", roles(managers...), h.Rooms.Create)

	courses.GET("/:id/night-shifts", roles(everyone...), h.NightShifts.List)
	courses.POST("/:id/night-shifts", roles(managers...), h.NightShifts.Create)
	courses.POST("/:id/night-shifts/auto-assign", roles(managers...), h.NightShifts.AutoAssignCourse)

	courses.GET("/:id/reports", roles(everyone...), h.Reports.List)
	courses.POST("/:id/reports/generate", roles(managers...), h.Reports.GenerateDaily)

	courses.POST("/:id/emails", roles(office...), h.Notifications.CourseEmail)

	courses.GET("/:id/exports/applications", roles(office...), h.Exports.Applications)
	courses.GET("/:id/exports/attendance", roles(office...), h.Exports.Attendance)
	courses.GET("/:id/exports/night-shifts", roles(office...), h.Exports.NightShifts)
	courses.GET("/:id/cards", roles(office...), h.Exports.Cards)
	courses.GET("/:id/certificates", roles(office...), h.Exports.Certificates)

	for prefix, people := range map[string]*PersonHandler{"/students": h.Students, "/volunteers": h.Volunteers} {
		g := r.Group(prefix)
		g.GET("", roles(office...), people.List)
		g.POST("", roles(office...), people.Create)
		g.GET("/:id", roles(office...), people.Get)
		g.PUT("/:id", roles(office...), people.Update)
		g.DELETE("/:id", roles(office...), people.Delete)
	}

	apps := r.Group("/applications")
	apps.POST("", roles(office...), h.Applications.Create)
	apps.POST("/bulk-status", roles(office...), h.Applications.BulkChangeStatus)
	apps.GET("/:id", roles(office...), h.Applications.Get)
	apps.PATCH("/:id/status", roles(office...), h.Applications.ChangeStatus)

	teams := r.Group("/teams")
	teams.GET("/:id", roles(everyone...), h.Placement.GetTeam)
	teams.PUT("/:id", roles(office...), h.Placement.UpdateTeam)
	teams.DELETE("/:id", roles(office...), h.Placement.DeleteTeam)
	teams.POST("/:id/members", roles(office...), h.Placement.AssignToTeam)
	teams.DELETE("/:id/members/:applicationId", roles(office...), h.Placement.UnassignFromTeam)

	groups := r.Group("/groups")
	groups.GET("/:id", roles(everyone...), h.Placement.GetGroup)
	groups.PUT("/:id", roles(office...), h.Placement.UpdateGroup)
	groups.DELETE("/:id", roles(office...), h.Placement.DeleteGroup)
	groups.POST("/:id/members", roles(office...), h.Placement.AssignToGroup)
	groups.DELETE("/:id/members/:applicationId", roles(office...), h.Placement.UnassignFromGroup)

	rooms := r.Group("/rooms")
	rooms.GET("/:id", roles(everyone...), h.Rooms.Get)
	rooms.PUT("/:id", roles(managers...), h.Rooms.Update)
	rooms.DELETE("/:id", roles(managers...), h.Rooms.Delete)

	shifts := r.Group("/night-shifts")
	shifts.GET("/:id", roles(everyone...), h.NightShifts.Get)
	shifts.PUT("/:id", roles(managers...), h.NightShifts.Update)
	shifts.DELETE("/:id", roles(managers...), h.NightShifts.Delete)
	shifts.POST("/:id/assignments", roles(managers...), h.NightShifts.Assign)
	shifts.GET("/:id/suggestions", roles(managers...), h.NightShifts.Suggestions)
	shifts.POST("/:id/auto-assign", roles(managers...), h.NightShifts.AutoAssign)

	assignments := r.Group("/night-shift-assignments")
	assignments.POST("/:id/reject", roles(field...), h.NightShifts.Reject)
	assignments.POST("/:id/reassign", roles(managers...), h.NightShifts.Reassign)

	r.GET("/me/night-shifts", h.NightShifts.MyShifts)

	reports := r.Group("/reports")
	reports.POST("", roles(field...), h.Reports.Create)
	reports.GET("/:id", roles(everyone...), h.Reports.Get)
	reports.PUT("/:id", roles(field...), h.Reports.Save)
	reports.POST("/:id/start", roles(field...), h.Reports.Start)
	reports.POST("/:id/submit", roles(field...), h.Reports.Submit)
	reports.POST("/:id/read", roles(office...), h.Reports.MarkRead)
	reports.POST("/:id/reopen", roles(managers...), h.Reports.Reopen)

	notifications := r.Group("/notifications")
	notifications.GET("", h.Notifications.List)
	notifications.POST("/read-all", h.Notifications.MarkAllRead)
	notifications.POST("/:id/read", h.Notifications.MarkRead)
	notifications.POST("/broadcast", roles(managers...), h.Notifications.Broadcast)

	exports := r.Group("/exports")
	exports.POST("", roles(office...), h.Exports.CreateJob)
	exports.GET("/:id", roles(office...), h.Exports.JobStatus)
}
