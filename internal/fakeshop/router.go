package fakeshop

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/roach88/shopsync/internal/model"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Secret         []byte
	AllowedOrigins []string
	TokenTTL       time.Duration
	Logger         *slog.Logger
}

// Claims are carried in issued bearer tokens.
type Claims struct {
	UserID int64  `json:"userId"`
	Role   string `json:"role"`
	jwt.StandardClaims
}

const claimsKey = "claims"

type server struct {
	store  *Store
	cfg    ServerConfig
	logger *slog.Logger
}

// NewRouter builds the gin engine serving the shop API.
func NewRouter(store *Store, cfg ServerConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	srv := &server{store: store, cfg: cfg, logger: cfg.Logger}

	r := gin.New()
	r.Use(gin.Recovery(), srv.accessLog)

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
	}
	if len(cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	r.POST("/api/auth/login", srv.login)
	r.POST("/api/auth/register", srv.register)
	r.GET("/api/products", srv.listProducts)

	api := r.Group("/api", srv.authenticate)
	{
		api.POST("/products", srv.requireAdmin, srv.createProduct)
		api.PUT("/products/update/:id", srv.requireAdmin, srv.updateProduct)
		api.DELETE("/products/delete/:id", srv.requireAdmin, srv.deleteProduct)

		api.POST("/orders/place", srv.placeOrder)
		api.GET("/orders", srv.requireAdmin, srv.listOrders)
		api.GET("/orders/user/:id", srv.listUserOrders)
		api.PUT("/orders/update/:id", srv.requireAdmin, srv.updateOrder)
	}
	return r
}

func (s *server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"request_id", c.GetHeader("X-Request-ID"),
		"duration", time.Since(start),
	)
}

// fail writes err in the shape the shop answers with.
func (s *server) fail(c *gin.Context, err error) {
	var se *Error
	if !errors.As(err, &se) {
		s.logger.Error("internal error", "path", c.Request.URL.Path, "error", err)
		c.String(http.StatusInternalServerError, "Internal server error")
		return
	}
	if se.Structured {
		c.JSON(se.Status, gin.H{"error": se.Message})
		return
	}
	c.String(se.Status, se.Message)
}

func (s *server) issueToken(sess model.Session) (string, error) {
	claims := Claims{
		UserID: sess.UserID,
		Role:   string(sess.Role),
		StandardClaims: jwt.StandardClaims{
			Subject:   sess.Username,
			ExpiresAt: time.Now().Add(s.cfg.TokenTTL).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
}

func (s *server) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	tokenStr := strings.TrimPrefix(header, "Bearer ")
	if header == "" || tokenStr == header {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.cfg.Secret, nil
	})
	if err != nil || !token.Valid {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.Set(claimsKey, token.Claims.(*Claims))
	c.Next()
}

func claimsOf(c *gin.Context) *Claims {
	v, _ := c.Get(claimsKey)
	cl, _ := v.(*Claims)
	return cl
}

func (s *server) requireAdmin(c *gin.Context) {
	cl := claimsOf(c)
	if cl == nil || cl.Role != string(model.RoleAdmin) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
		return
	}
	c.Next()
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.String(http.StatusBadRequest, "Invalid id: %s", c.Param("id"))
		return 0, false
	}
	return id, true
}

func (s *server) login(c *gin.Context) {
	var req model.Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}
	sess, err := s.store.Authenticate(req.Username, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	if sess.Token, err = s.issueToken(sess); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":  sess.UserID,
		"username": sess.Username,
		"role":     "ROLE_" + string(sess.Role),
		"token":    sess.Token,
	})
}

func (s *server) register(c *gin.Context) {
	var d model.UserDraft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}
	if err := s.store.Register(d); err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, "User registered successfully!")
}

func (s *server) listProducts(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Products())
}

func (s *server) createProduct(c *gin.Context) {
	var d model.ProductDraft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}
	p, err := s.store.CreateProduct(d)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *server) updateProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var p model.Product
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}
	updated, err := s.store.UpdateProduct(id, p)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *server) deleteProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteProduct(id); err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, "Product deleted successfully")
}

func (s *server) placeOrder(c *gin.Context) {
	var req model.OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input"})
		return
	}
	if cl := claimsOf(c); cl.Role != string(model.RoleAdmin) && cl.UserID != req.UserID {
		c.String(http.StatusForbidden, "Cannot place orders for another user")
		return
	}
	order, err := s.store.PlaceOrder(req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.String(http.StatusOK, "Order placed successfully! Order ID: %d", order.ID)
}

func (s *server) listOrders(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.Orders())
}

func (s *server) listUserOrders(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if cl := claimsOf(c); cl.Role != string(model.RoleAdmin) && cl.UserID != id {
		c.String(http.StatusForbidden, "Cannot list orders of another user")
		return
	}
	c.JSON(http.StatusOK, s.store.UserOrders(id))
}

func (s *server) updateOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	order, err := s.store.SetOrderStatus(id, c.Query("status"), c.Query("paymentStatus"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
