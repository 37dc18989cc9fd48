package external

// Clients groups the outbound service clients built from one configuration
type Clients struct {
	Inventory     *InventoryClient
	Payment       *PaymentClient
	Notifications *NotificationClient
}

func NewClients(inventory InventoryConfig, payment PaymentConfig, notifications NotificationConfig) *Clients {
	return &Clients{
		Inventory:     NewInventoryClient(inventory),
		Payment:       NewPaymentClient(payment),
		Notifications: NewNotificationClient(notifications),
	}
}
