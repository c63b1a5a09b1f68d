package group_test

import (
	"github.com/dash-project/dartrt/core/group"
	"github.com/dash-project/dartrt/core/gptr"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Group", func() {
	Describe("set algebra", func() {
		var g *group.Group

		BeforeEach(func() {
			g = group.FromUnits([]gptr.GlobalUnit{1, 2, 3})
		})

		It("unions with itself to itself", func() {
			Expect(group.Equal(group.Union(g, g), g)).To(BeTrue())
		})

		It("intersects with itself to itself", func() {
			Expect(group.Equal(group.Intersect(g, g), g)).To(BeTrue())
		})

		It("differences with itself to empty", func() {
			empty := group.New()
			Expect(group.Equal(group.Difference(g, g), empty)).To(BeTrue())
		})

		It("union is commutative", func() {
			h := group.FromUnits([]gptr.GlobalUnit{3, 4, 5})
			Expect(group.Equal(group.Union(g, h), group.Union(h, g))).To(BeTrue())
		})
	})

	Describe("local/global round trip", func() {
		It("satisfies l2g[g2l[u]] == u for every member", func() {
			g := group.FromUnits([]gptr.GlobalUnit{10, 20, 30, 5})
			for _, u := range g.Units() {
				local, ok := g.LocalOf(u)
				Expect(ok).To(BeTrue())
				back, ok := g.GlobalAt(local)
				Expect(ok).To(BeTrue())
				Expect(back).To(Equal(u))
			}
		})
	})

	Describe("split", func() {
		It("partitions into contiguous chunks differing by at most one", func() {
			g := group.FromUnits([]gptr.GlobalUnit{1, 2, 3, 4, 5, 6, 7})
			parts := group.Split(g, 3)
			Expect(parts).To(HaveLen(3))
			total := 0
			max, min := 0, 1<<30
			for _, p := range parts {
				total += p.Size()
				if p.Size() > max {
					max = p.Size()
				}
				if p.Size() < min {
					min = p.Size()
				}
			}
			Expect(total).To(Equal(7))
			Expect(max - min).To(BeNumerically("<=", 1))
		})
	})

	Describe("membership", func() {
		It("adds and removes", func() {
			g := group.New()
			g = g.Add(42)
			Expect(g.Contains(42)).To(BeTrue())
			g = g.Remove(42)
			Expect(g.Contains(42)).To(BeFalse())
		})
	})
})
