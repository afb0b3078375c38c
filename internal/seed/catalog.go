package seed

import (
	"hash/fnv"
	"strings"
)

// Product is one demo catalog entry.
type Product struct {
	Name        string
	Price       string
	Description string
}

// categories maps a store category to its demo product set.
var categories = map[string][]Product{
	"electronics": {
		{"Premium Wireless Headphones", "199.99", "High-quality wireless headphones with noise cancellation and 30-hour battery life."},
		{"Smart Fitness Watch", "299.99", "Track your fitness goals with GPS, heart rate monitoring, and sleep tracking."},
		{"4K Wireless Security Camera", "149.99", "Crystal clear 4K video with night vision and motion detection."},
		{"Portable Bluetooth Speaker", "89.99", "Waterproof speaker with 360-degree sound and 20-hour battery."},
		{"Wireless Charging Pad", "39.99", "Fast wireless charging for all Qi-enabled devices."},
		{"USB-C Hub Adapter", "49.99", "7-in-1 hub with HDMI, USB 3.0, SD card reader, and more."},
	},
	"fashion": {
		{"Organic Cotton T-Shirt", "29.99", "Comfortable 100% organic cotton t-shirt available in multiple colors."},
		{"Leather Messenger Bag", "149.99", "Handcrafted genuine leather messenger bag perfect for work or travel."},
		{"Classic Denim Jeans", "79.99", "Premium denim with perfect fit and timeless style."},
		{"Wool Blend Sweater", "89.99", "Cozy and warm sweater made from premium wool blend."},
		{"Canvas Sneakers", "59.99", "Comfortable everyday sneakers with classic design."},
		{"Silk Scarf", "44.99", "Luxurious silk scarf with elegant patterns."},
	},
	"sports": {
		{"Yoga Mat Pro", "79.99", "Non-slip premium yoga mat with extra cushioning and carrying strap."},
		{"Adjustable Dumbbell Set", "249.99", "Space-saving dumbbells adjustable from 5 to 52 pounds."},
		{"Running Shoes Elite", "129.99", "Lightweight running shoes with responsive cushioning."},
		{"Resistance Band Kit", "34.99", "Complete set of 5 resistance bands with door anchor and handles."},
		{"Insulated Water Bottle", "24.99", "Keeps drinks cold for 24 hours or hot for 12 hours."},
		{"Foam Roller", "29.99", "High-density foam roller for muscle recovery and massage."},
	},
	"home": {
		{"Ceramic Plant Pot Set", "49.99", "Set of 3 modern ceramic pots with drainage and bamboo trays."},
		{"Scented Soy Candle", "19.99", "Hand-poured soy candle with 40-hour burn time."},
		{"Linen Throw Blanket", "69.99", "Soft stonewashed linen blanket for sofa or bed."},
		{"Bamboo Cutting Board", "34.99", "Sustainable bamboo board with juice groove."},
		{"Wall Art Print Set", "59.99", "Set of 3 framed botanical prints."},
		{"Cast Iron Skillet", "44.99", "Pre-seasoned 10-inch skillet for stovetop and oven."},
	},
	"books": {
		{"The Art of Slow Living", "24.99", "A guide to mindful living in a fast-paced world."},
		{"Modern Cooking Essentials", "39.99", "200 foolproof recipes with step-by-step photography."},
		{"Atlas of Remote Places", "49.99", "A beautifully illustrated journey to the world's most isolated spots."},
		{"The Productivity Paradox", "19.99", "Why doing less gets more done."},
		{"Night Sky Field Guide", "29.99", "Star charts and tips for backyard astronomy."},
		{"Classic Poetry Collection", "22.99", "Hardbound anthology of timeless verse."},
	},
	"beauty": {
		{"Vitamin C Serum", "34.99", "Brightening facial serum with 20% vitamin C and hyaluronic acid."},
		{"Makeup Brush Set", "49.99", "Professional 12-piece makeup brush collection."},
		{"Natural Lip Balm Set", "19.99", "Set of 3 organic lip balms with nourishing ingredients."},
		{"Jade Facial Roller", "29.99", "Natural jade roller for facial massage and de-puffing."},
		{"Hair Care Gift Set", "59.99", "Complete hair care set with shampoo, conditioner, and mask."},
		{"Bath Bomb Collection", "24.99", "Set of 6 luxurious bath bombs with essential oils."},
	},
}

// keywordRules maps display-name substrings to a category.
var keywordRules = []struct {
	keywords []string
	category string
}{
	{[]string{"tech", "electronic", "gadget"}, "electronics"},
	{[]string{"fashion", "cloth", "apparel", "style"}, "fashion"},
	{[]string{"sport", "fit", "gym", "athletic"}, "sports"},
	{[]string{"home", "garden", "decor"}, "home"},
	{[]string{"book", "read", "library"}, "books"},
	{[]string{"beauty", "cosmetic", "makeup"}, "beauty"},
}

// categoryOrder fixes the fallback rotation so DetectCategory stays
// deterministic for a given display name.
var categoryOrder = []string{"electronics", "fashion", "sports", "home", "books", "beauty"}

// DetectCategory picks a product category from the store's display name.
// Unrecognized names hash to a stable category rather than a random one.
func DetectCategory(displayName string) string {
	name := strings.ToLower(displayName)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(name, kw) {
				return rule.category
			}
		}
	}

	h := fnv.New32a()
	h.Write([]byte(name))
	return categoryOrder[h.Sum32()%uint32(len(categoryOrder))]
}

// ProductsFor returns the demo products for a category.
func ProductsFor(category string) []Product {
	return categories[category]
}
