package fdtd

// vectorKernel runs the interior of the grid as flat contiguous loops
// over the z-runs, leaving only the boundary shells to per-cell updates.
// This is the Go rendition of the original SSE engine: straight-line
// gather loops the compiler can keep in registers.
type vectorKernel struct {
	op      *Operator
	strides [3]int
}

func newVectorKernel(op *Operator) *vectorKernel {
	return &vectorKernel{op: op, strides: [3]int{op.Stride(0), op.Stride(1), op.Stride(2)}}
}

func (v *vectorKernel) updateVoltages(e *Engine) {
	op := v.op
	nx, ny, nz := op.numLines[0], op.numLines[1], op.numLines[2]

	for n := 0; n < 3; n++ {
		np1 := (n + 1) % 3
		np2 := (n + 2) % 3
		s1 := v.strides[np1]
		s2 := v.strides[np2]
		volt := e.volt[n]
		h1 := e.curr[np2]
		h2 := e.curr[np1]
		vv := op.vv[n]
		viA := op.viA[n]
		viB := op.viB[n]

		for i := 1; i < nx; i++ {
			for j := 1; j < ny; j++ {
				base := op.Index(i, j, 1)
				end := base + nz - 1
				for idx := base; idx < end; idx++ {
					volt[idx] = vv[idx]*volt[idx] + viA[idx]*(h1[idx]-h1[idx-s1]) - viB[idx]*(h2[idx]-h2[idx-s2])
				}
			}
		}
	}
	v.voltageBoundary(e)
}

// voltageBoundary updates the three lower shells where a backward
// neighbor is missing.
func (v *vectorKernel) voltageBoundary(e *Engine) {
	op := v.op
	nx, ny, nz := op.numLines[0], op.numLines[1], op.numLines[2]
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				if i > 0 && j > 0 && k > 0 {
					continue
				}
				updateVoltageCell(e, op.Index(i, j, k), [3]int{i, j, k}, v.strides)
			}
		}
	}
}

func (v *vectorKernel) updateCurrents(e *Engine) {
	op := v.op
	nx, ny, nz := op.numLines[0], op.numLines[1], op.numLines[2]

	for n := 0; n < 3; n++ {
		np1 := (n + 1) % 3
		np2 := (n + 2) % 3
		s1 := v.strides[np1]
		s2 := v.strides[np2]
		curr := e.curr[n]
		e1 := e.volt[np2]
		e2 := e.volt[np1]
		ivA := op.ivA[n]
		ivB := op.ivB[n]

		for i := 0; i < nx-1; i++ {
			for j := 0; j < ny-1; j++ {
				base := op.Index(i, j, 0)
				end := base + nz - 1
				for idx := base; idx < end; idx++ {
					curr[idx] = curr[idx] - ivA[idx]*(e1[idx+s1]-e1[idx]) + ivB[idx]*(e2[idx+s2]-e2[idx])
				}
			}
		}
	}
	v.currentBoundary(e)
}

func (v *vectorKernel) currentBoundary(e *Engine) {
	op := v.op
	nx, ny, nz := op.numLines[0], op.numLines[1], op.numLines[2]
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			for k := 0; k < nz; k++ {
				if i < nx-1 && j < ny-1 && k < nz-1 {
					continue
				}
				updateCurrentCell(e, op.Index(i, j, k), [3]int{i, j, k}, v.strides)
			}
		}
	}
}

// compressedKernel deduplicates the per-cell coefficient tuples into a
// lookup table with a compact index per cell, trading a gather for a much
// smaller working set when few distinct materials exist.
type compressedKernel struct {
	op      *Operator
	strides [3]int

	// per component: unique [vv viA viB] / [ivA ivB] rows + cell index
	vTable [3][][3]float64
	vIdx   [3][]uint32
	iTable [3][][2]float64
	iIdx   [3][]uint32
}

func newCompressedKernel(op *Operator) *compressedKernel {
	c := &compressedKernel{op: op, strides: [3]int{op.Stride(0), op.Stride(1), op.Stride(2)}}
	size := int(op.NumberOfCells())
	for n := 0; n < 3; n++ {
		vSeen := make(map[[3]float64]uint32)
		iSeen := make(map[[2]float64]uint32)
		c.vIdx[n] = make([]uint32, size)
		c.iIdx[n] = make([]uint32, size)
		for idx := 0; idx < size; idx++ {
			vRow := [3]float64{op.vv[n][idx], op.viA[n][idx], op.viB[n][idx]}
			id, ok := vSeen[vRow]
			if !ok {
				id = uint32(len(c.vTable[n]))
				c.vTable[n] = append(c.vTable[n], vRow)
				vSeen[vRow] = id
			}
			c.vIdx[n][idx] = id

			iRow := [2]float64{op.ivA[n][idx], op.ivB[n][idx]}
			id, ok = iSeen[iRow]
			if !ok {
				id = uint32(len(c.iTable[n]))
				c.iTable[n] = append(c.iTable[n], iRow)
				iSeen[iRow] = id
			}
			c.iIdx[n][idx] = id
		}
	}
	return c
}

// CompressionRatio reports distinct voltage-coefficient rows per cell.
func (c *compressedKernel) CompressionRatio() float64 {
	cells := float64(c.op.NumberOfCells())
	if cells == 0 {
		return 0
	}
	return float64(len(c.vTable[0])+len(c.vTable[1])+len(c.vTable[2])) / (3 * cells)
}

func (c *compressedKernel) updateVoltages(e *Engine) {
	op := c.op
	for i := 0; i < op.numLines[0]; i++ {
		for j := 0; j < op.numLines[1]; j++ {
			idx := op.Index(i, j, 0)
			for k := 0; k < op.numLines[2]; k++ {
				pos := [3]int{i, j, k}
				for n := 0; n < 3; n++ {
					np1 := (n + 1) % 3
					np2 := (n + 2) % 3
					row := c.vTable[n][c.vIdx[n][idx]]
					dH1 := e.curr[np2][idx]
					if pos[np1] > 0 {
						dH1 -= e.curr[np2][idx-c.strides[np1]]
					}
					dH2 := e.curr[np1][idx]
					if pos[np2] > 0 {
						dH2 -= e.curr[np1][idx-c.strides[np2]]
					}
					e.volt[n][idx] = row[0]*e.volt[n][idx] + row[1]*dH1 - row[2]*dH2
				}
				idx++
			}
		}
	}
}

func (c *compressedKernel) updateCurrents(e *Engine) {
	op := c.op
	for i := 0; i < op.numLines[0]; i++ {
		for j := 0; j < op.numLines[1]; j++ {
			idx := op.Index(i, j, 0)
			for k := 0; k < op.numLines[2]; k++ {
				pos := [3]int{i, j, k}
				for n := 0; n < 3; n++ {
					np1 := (n + 1) % 3
					np2 := (n + 2) % 3
					row := c.iTable[n][c.iIdx[n][idx]]
					var dE1, dE2 float64
					if pos[np1] < op.numLines[np1]-1 {
						dE1 = e.volt[np2][idx+c.strides[np1]] - e.volt[np2][idx]
					}
					if pos[np2] < op.numLines[np2]-1 {
						dE2 = e.volt[np1][idx+c.strides[np2]] - e.volt[np1][idx]
					}
					e.curr[n][idx] = e.curr[n][idx] - row[0]*dE1 + row[1]*dE2
				}
				idx++
			}
		}
	}
}
